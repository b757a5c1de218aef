package testutil

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Access flags used by the generated class files.
const (
	AccPublic = 0x0001
	AccStatic = 0x0008
	AccFinal  = 0x0010
)

// Member describes a field or method written by ClassBuilder.
type Member struct {
	Access     uint16
	Name       string
	Descriptor string
}

// ClassBuilder assembles a class file with a constant pool, fields and
// methods. Methods are written without Code attributes, which is enough
// for readers that only look at declarations.
type ClassBuilder struct {
	Name       string // internal name, e.g. "com/acme/Foo"
	Super      string // internal name; defaults to java/lang/Object
	Interfaces []string
	Access     uint16
	Fields     []Member
	Methods    []Member
	SourceFile string

	pool  bytes.Buffer
	count uint16
	utf8  map[string]uint16
	class map[string]uint16
}

// ClassFile returns a minimal public class for an archive path such as
// "com/acme/Foo.class" with one field and a constructor.
func ClassFile(archivePath string) []byte {
	name := strings.TrimSuffix(archivePath, ".class")
	b := &ClassBuilder{
		Name:   name,
		Access: AccPublic,
		Fields: []Member{{Access: AccPublic, Name: "value", Descriptor: "I"}},
		Methods: []Member{
			{Access: AccPublic, Name: "<init>", Descriptor: "()V"},
		},
	}
	return b.Bytes()
}

// Bytes serializes the class file.
func (b *ClassBuilder) Bytes() []byte {
	b.pool.Reset()
	b.count = 1
	b.utf8 = map[string]uint16{}
	b.class = map[string]uint16{}

	super := b.Super
	if super == "" {
		super = "java/lang/Object"
	}

	thisIdx := b.classRef(b.Name)
	superIdx := b.classRef(super)
	ifaceIdx := make([]uint16, len(b.Interfaces))
	for i, iface := range b.Interfaces {
		ifaceIdx[i] = b.classRef(iface)
	}

	var body bytes.Buffer
	write := func(v any) { _ = binary.Write(&body, binary.BigEndian, v) }

	write(b.Access)
	write(thisIdx)
	write(superIdx)
	write(uint16(len(ifaceIdx)))
	for _, idx := range ifaceIdx {
		write(idx)
	}
	for _, members := range [][]Member{b.Fields, b.Methods} {
		write(uint16(len(members)))
		for _, m := range members {
			write(m.Access)
			write(b.utf8Ref(m.Name))
			write(b.utf8Ref(m.Descriptor))
			write(uint16(0)) // attributes
		}
	}
	if b.SourceFile != "" {
		attrName := b.utf8Ref("SourceFile")
		value := b.utf8Ref(b.SourceFile)
		write(uint16(1))
		write(attrName)
		write(uint32(2))
		write(value)
	} else {
		write(uint16(0))
	}

	var out bytes.Buffer
	w := func(v any) { _ = binary.Write(&out, binary.BigEndian, v) }
	w(uint32(0xCAFEBABE))
	w(uint16(0))  // minor
	w(uint16(52)) // major: Java 8
	w(b.count)
	out.Write(b.pool.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func (b *ClassBuilder) utf8Ref(s string) uint16 {
	if idx, ok := b.utf8[s]; ok {
		return idx
	}
	b.pool.WriteByte(1)
	_ = binary.Write(&b.pool, binary.BigEndian, uint16(len(s)))
	b.pool.WriteString(s)
	idx := b.count
	b.count++
	b.utf8[s] = idx
	return idx
}

func (b *ClassBuilder) classRef(name string) uint16 {
	if idx, ok := b.class[name]; ok {
		return idx
	}
	nameIdx := b.utf8Ref(name)
	b.pool.WriteByte(7)
	_ = binary.Write(&b.pool, binary.BigEndian, nameIdx)
	idx := b.count
	b.count++
	b.class[name] = idx
	return idx
}
