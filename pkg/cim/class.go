package cim

// CheckClass returns a *WrongTypeError unless obj is an instance of one of
// classes or of a subclass of one of them.
func CheckClass(obj ManagedObject, classes ...string) error {
	if obj == nil {
		return &WrongTypeError{Got: "<nil>", Want: classes}
	}
	for _, c := range classes {
		if IsA(obj, c) {
			return nil
		}
	}
	return &WrongTypeError{Got: obj.ClassName(), Want: classes}
}
