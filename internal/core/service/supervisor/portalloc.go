package supervisor

import (
	"fmt"
	"net"

	"github.com/devicelab/controller/internal/core/controllererr"
)

// portAllocator hands out ports from a contiguous range by probing a
// bind (spec.md §4.4): scan the range, skip ports already claimed by
// this supervisor, bind-and-close to confirm the OS considers it free.
type portAllocator struct {
	base  int
	count int
	inUse map[int]bool
}

func newPortAllocator(base, count int) *portAllocator {
	return &portAllocator{base: base, count: count, inUse: make(map[int]bool)}
}

// allocate claims and returns a free port, or a ResourceExhaustion error
// if the range is exhausted (spec.md §8: "Allocating the 101st port when
// 100 are in use fails with ResourceExhaustion").
func (p *portAllocator) allocate() (int, error) {
	for i := 0; i < p.count; i++ {
		candidate := p.base + i
		if p.inUse[candidate] {
			continue
		}
		if !probeBind(candidate) {
			continue
		}
		p.inUse[candidate] = true
		return candidate, nil
	}
	return 0, controllererr.New("supervisor.allocate", controllererr.KindResourceExhaustion,
		fmt.Errorf("no available ports in range [%d, %d)", p.base, p.base+p.count))
}

// release returns a port to the pool.
func (p *portAllocator) release(port int) {
	delete(p.inUse, port)
}

// probeBind reports whether port is currently bindable.
func probeBind(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
