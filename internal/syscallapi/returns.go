package syscallapi

// ReturnKind tags the wire-format syscall return variants (§6).
type ReturnKind int

const (
	RetSuccess ReturnKind = iota
	RetSuccessU32x1
	RetSuccessU32x2
	RetSuccessU32x3
	RetFailure
	RetFailureU32x1
	RetFailureU32x2
	RetFailureU32x3
	RetAllowReadWriteSuccess
	RetAllowReadWriteFailure
	RetAllowReadOnlySuccess
	RetAllowReadOnlyFailure
	RetUserspaceReadableAllowSuccess
	RetUserspaceReadableAllowFailure
	RetSubscribeSuccess
	RetSubscribeFailure
)

// Return is a decoded syscall return value. Exactly the fields relevant to
// Kind are meaningful; Encode packs it into the flat register-return
// representation Process.SetSyscallReturnValue expects.
type Return struct {
	Kind    ReturnKind
	Err     ErrorCode
	Values  [3]uintptr // Success/Failure U32 payloads
	Ptr     uintptr    // Allow/Subscribe pointer payload
	Len     uintptr    // Allow length payload
	AppData uintptr    // Subscribe appdata payload
}

func Success() Return                       { return Return{Kind: RetSuccess} }
func SuccessU32(v0 uintptr) Return           { return Return{Kind: RetSuccessU32x1, Values: [3]uintptr{v0}} }
func SuccessU32x2(v0, v1 uintptr) Return     { return Return{Kind: RetSuccessU32x2, Values: [3]uintptr{v0, v1}} }
func SuccessU32x3(v0, v1, v2 uintptr) Return { return Return{Kind: RetSuccessU32x3, Values: [3]uintptr{v0, v1, v2}} }

func Failure(e ErrorCode) Return { return Return{Kind: RetFailure, Err: e} }
func FailureU32(e ErrorCode, v0 uintptr) Return {
	return Return{Kind: RetFailureU32x1, Err: e, Values: [3]uintptr{v0}}
}

func AllowReadWriteSuccess(ptr, length uintptr) Return {
	return Return{Kind: RetAllowReadWriteSuccess, Ptr: ptr, Len: length}
}
func AllowReadWriteFailure(e ErrorCode, ptr, length uintptr) Return {
	return Return{Kind: RetAllowReadWriteFailure, Err: e, Ptr: ptr, Len: length}
}
func AllowReadOnlySuccess(ptr, length uintptr) Return {
	return Return{Kind: RetAllowReadOnlySuccess, Ptr: ptr, Len: length}
}
func AllowReadOnlyFailure(e ErrorCode, ptr, length uintptr) Return {
	return Return{Kind: RetAllowReadOnlyFailure, Err: e, Ptr: ptr, Len: length}
}
func UserspaceReadableAllowSuccess(ptr, length uintptr) Return {
	return Return{Kind: RetUserspaceReadableAllowSuccess, Ptr: ptr, Len: length}
}
func UserspaceReadableAllowFailure(e ErrorCode, ptr, length uintptr) Return {
	return Return{Kind: RetUserspaceReadableAllowFailure, Err: e, Ptr: ptr, Len: length}
}
func SubscribeSuccess(ptr, appdata uintptr) Return {
	return Return{Kind: RetSubscribeSuccess, Ptr: ptr, AppData: appdata}
}
func SubscribeFailure(e ErrorCode, ptr, appdata uintptr) Return {
	return Return{Kind: RetSubscribeFailure, Err: e, Ptr: ptr, AppData: appdata}
}

// Encode packs the return into (tag, a, b, c, d) flat registers.
func (r Return) Encode() [5]uintptr {
	switch r.Kind {
	case RetSuccess:
		return [5]uintptr{uintptr(r.Kind)}
	case RetSuccessU32x1:
		return [5]uintptr{uintptr(r.Kind), r.Values[0]}
	case RetSuccessU32x2:
		return [5]uintptr{uintptr(r.Kind), r.Values[0], r.Values[1]}
	case RetSuccessU32x3:
		return [5]uintptr{uintptr(r.Kind), r.Values[0], r.Values[1], r.Values[2]}
	case RetFailure:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err)}
	case RetFailureU32x1:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err), r.Values[0]}
	case RetFailureU32x2:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err), r.Values[0], r.Values[1]}
	case RetFailureU32x3:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err), r.Values[0], r.Values[1], r.Values[2]}
	case RetAllowReadWriteSuccess, RetAllowReadOnlySuccess, RetUserspaceReadableAllowSuccess:
		return [5]uintptr{uintptr(r.Kind), r.Ptr, r.Len}
	case RetAllowReadWriteFailure, RetAllowReadOnlyFailure, RetUserspaceReadableAllowFailure:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err), r.Ptr, r.Len}
	case RetSubscribeSuccess:
		return [5]uintptr{uintptr(r.Kind), r.Ptr, r.AppData}
	case RetSubscribeFailure:
		return [5]uintptr{uintptr(r.Kind), uintptr(r.Err), r.Ptr, r.AppData}
	default:
		return [5]uintptr{uintptr(RetFailure), uintptr(FAIL)}
	}
}
