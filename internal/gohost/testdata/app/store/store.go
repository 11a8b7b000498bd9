package store

type Builder struct {
	parts []string
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) With(part string) *Builder {
	b.parts = append(b.parts, part)
	return b
}

func (b *Builder) Len() int {
	return len(b.parts)
}
