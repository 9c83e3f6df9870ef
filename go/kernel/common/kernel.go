package common

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"

	"github.com/trapcore/trapcore/go/models/cpu"
)

// KernelBase is embedded by concrete kernels. Exported methods on the
// embedding type become services, keyed by the snake_case method name.
type KernelBase struct {
	Services map[string]Service
	C        cpu.Cpu
	Argjoy   argjoy.Argjoy
}

func (k *KernelBase) TrapKernel() *KernelBase {
	return k
}

type Kernel interface {
	TrapKernel() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

func initKernel(kf Kernel) {
	k := kf.TrapKernel()
	k.Services = make(map[string]Service)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if name == "TrapKernel" {
			continue
		}
		if strings.HasPrefix(name, "Literal") {
			name = strings.Replace(name, "Literal", "", 1)
		} else if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			// skip private or broken unicode methods
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		uintArr := false
		if len(in) > 0 && in[0] == reflect.SliceOf(reflect.TypeOf(uint64(0))) {
			uintArr = true
			in = in[1:]
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Services[name] = Service{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
			UintArr:  uintArr,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

func Lookup(c cpu.Cpu, kf Kernel, name string) *Service {
	k := kf.TrapKernel()
	k.C = c
	if k.Services == nil {
		initKernel(kf)
	}
	if svc, ok := k.Services[name]; ok {
		return &svc
	}
	return nil
}
