// Command devicelab-controller discovers Android/iOS devices, arbitrates
// reservations over them, supervises per-device Appium driver processes,
// and serves a realtime push API over HTTP.
package main

import "github.com/devicelab/controller/cmd"

func main() {
	cmd.Execute()
}
