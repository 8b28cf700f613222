package variant

import "unique"

// Identifier is an interned property or method name.
type Identifier struct {
	h unique.Handle[string]
}

// Intern returns the identifier for name.
func Intern(name string) Identifier {
	return Identifier{h: unique.Make(name)}
}

// InternString interns the text of s, going through a pooled buffer so
// short script strings do not allocate an intermediate copy.
func InternString(s String) (Identifier, error) {
	if !s.IsLazy() && s.Encoding() == UTF8 {
		return Intern(s.raw), nil
	}
	p, err := s.Pooled(UTF8)
	if err != nil {
		return Identifier{}, err
	}
	defer p.Release()
	return Intern(string(p.Bytes())), nil
}

func (id Identifier) String() string {
	if id.IsZero() {
		return ""
	}
	return id.h.Value()
}

func (id Identifier) IsZero() bool {
	return id == Identifier{}
}
