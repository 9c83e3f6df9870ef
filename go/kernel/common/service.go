package common

import (
	"fmt"
	"reflect"
)

type Service struct {
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	Out      []reflect.Type
	UintArr  bool
}

// Call a service from the dispatch table. Will panic() if anything goes terribly wrong.
func (svc Service) Call(args []uint64) uint64 {
	extraArgs := 1
	if svc.UintArr {
		extraArgs += 1
	}
	in := make([]reflect.Value, len(svc.In)+extraArgs)
	in[0] = svc.Instance
	// special case "all args" list
	if svc.UintArr {
		in[1] = reflect.ValueOf(args)
	}
	// convert service arguments
	converted, err := svc.Kernel.Argjoy.Convert(svc.In, false, args)
	if err != nil {
		msg := fmt.Sprintf("calling %T.%s(): %s", svc.Instance.Interface(), svc.Method.Name, err)
		panic(msg)
	}
	copy(in[extraArgs:], converted)
	// call handler function
	out := svc.Method.Func.Call(in)
	// return output if first return of function is representable as an int type
	Uint64Type := reflect.TypeOf(uint64(0))
	if len(out) > 0 && out[0].Type().ConvertibleTo(Uint64Type) {
		return out[0].Convert(Uint64Type).Uint()
	}
	return 0
}
