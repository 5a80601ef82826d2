// Package pathattr provides the Path value type used throughout the build
// engine: a filesystem-relative string optionally carrying attribute flags.
package pathattr

// Attr is a set of orthogonal, composable flags on a Path.
type Attr uint8

const (
	// Protected outputs must not be overwritten if already present.
	Protected Attr = 1 << iota
	// Temp outputs are eligible for deletion once all consumers finish.
	Temp
	// Dynamic paths contain wildcard placeholders resolved at expansion time.
	Dynamic
)

// Path is a filesystem-relative path string plus its attribute flags.
type Path struct {
	Name  string
	Attrs Attr
}

// New wraps a plain path with no attributes.
func New(name string) Path {
	return Path{Name: name}
}

// WithProtected returns p with the Protected flag set, composing with any
// flags p already carries.
func (p Path) WithProtected() Path {
	p.Attrs |= Protected
	return p
}

// WithTemp returns p with the Temp flag set.
func (p Path) WithTemp() Path {
	p.Attrs |= Temp
	return p
}

// WithDynamic returns p with the Dynamic flag set.
func (p Path) WithDynamic() Path {
	p.Attrs |= Dynamic
	return p
}

func (p Path) IsProtected() bool { return p.Attrs&Protected != 0 }
func (p Path) IsTemp() bool      { return p.Attrs&Temp != 0 }
func (p Path) IsDynamic() bool   { return p.Attrs&Dynamic != 0 }

// ProtectedOf wraps name with the Protected flag. Mirrors spec.md's
// constructor-function notation protected(p).
func ProtectedOf(name string) Path { return New(name).WithProtected() }

// TempOf wraps name with the Temp flag.
func TempOf(name string) Path { return New(name).WithTemp() }

// DynamicOf wraps name with the Dynamic flag.
func DynamicOf(name string) Path { return New(name).WithDynamic() }

// WithName returns a copy of p with a different underlying path string,
// preserving attributes. Used when substituting wildcard bindings into an
// output pattern's attributes.
func (p Path) WithName(name string) Path {
	p.Name = name
	return p
}

func (p Path) String() string { return p.Name }
