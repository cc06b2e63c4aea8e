package dispatch_test

import (
	"fmt"

	"github.com/me/coopsched/pkg/dispatch"
)

func Example() {
	reg, err := dispatch.NewRegistry(dispatch.DefaultConfig())
	if err != nil {
		panic(err)
	}
	reg.Register(dispatch.Func(func() { fmt.Println("fast") }), "fast", 1, dispatch.Blocked)
	reg.Register(dispatch.Func(func() { fmt.Println("slow") }), "slow", 3, dispatch.Blocked)

	d := dispatch.NewDispatcher(reg)
	for tick := 1; tick <= 3; tick++ {
		d.Tick()
		fmt.Println("tick", tick)
		d.RunReady()
	}
	// Output:
	// tick 1
	// fast
	// tick 2
	// fast
	// tick 3
	// fast
	// slow
}

func ExampleRegistry_FindByName() {
	reg, _ := dispatch.NewRegistry(dispatch.DefaultConfig())
	reg.Register(dispatch.Func(func() {}), "led0", 1, dispatch.Blocked)
	reg.Register(dispatch.Func(func() {}), "led1", 2, dispatch.Suspended)

	idx, _ := reg.FindByName("led1")
	reg.SetState(idx, dispatch.Blocked)
	info, _ := reg.Info(idx)
	fmt.Println(info.Index, info.Name, info.State)
	// Output: 1 led1 BLOCKED
}
