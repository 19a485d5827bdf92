// Classifies errors by kind while preserving their cause.
//
// Each package declares its error kinds as sentinel values in an errors.go
// file. Failures are reported by wrapping the underlying cause with the kind
// that best describes it:
//
//	if err := os.MkdirAll(dir, 0755); err != nil {
//	    return fault.Wrap(ErrStorage, err)
//	}
//
// The resulting error matches both the kind and the cause under [errors.Is],
// and carries a stack trace captured at the wrap site (printed with "%+v").
package fault
