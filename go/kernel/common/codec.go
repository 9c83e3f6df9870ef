package common

import (
	"github.com/lunixbochs/argjoy"
)

type strReader interface {
	ReadStrAt(addr uint64) (string, error)
}

func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Buf:
			*v = Buf{K: k, Addr: reg}
		case *Obuf:
			*v = Obuf{Buf{K: k, Addr: reg}}
		case *Len:
			*v = Len(reg)
		case *Off:
			*v = Off(reg)
		case *Ptr:
			*v = Ptr(reg)
		case *string:
			sr, ok := k.C.(strReader)
			if !ok {
				return argjoy.NoMatch
			}
			s, err := sr.ReadStrAt(reg)
			if err != nil {
				return err
			}
			*v = s
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
