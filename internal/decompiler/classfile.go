package decompiler

import (
	"encoding/binary"
	"fmt"

	"github.com/shinji-kodama/classlens/internal/model"
)

// Magic is the four-byte header of every class file.
const Magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Access flags shared by classes, fields and methods. Several bits mean
// different things depending on where they appear.
const (
	accPublic       = 0x0001
	accPrivate      = 0x0002
	accProtected    = 0x0004
	accStatic       = 0x0008
	accFinal        = 0x0010
	accSynchronized = 0x0020 // methods
	accVolatile     = 0x0040 // fields
	accBridge       = 0x0040 // methods
	accTransient    = 0x0080 // fields
	accVarargs      = 0x0080 // methods
	accNative       = 0x0100
	accInterface    = 0x0200
	accAbstract     = 0x0400
	accStrict       = 0x0800
	accSynthetic    = 0x1000
	accAnnotation   = 0x2000
	accEnum         = 0x4000
)

// CheckMagic fails with model.ErrInvalidClassFile unless data starts with
// the class-file magic number.
func CheckMagic(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: %d bytes", model.ErrInvalidClassFile, len(data))
	}
	if m := binary.BigEndian.Uint32(data); m != Magic {
		return fmt.Errorf("%w: bad magic 0x%08X", model.ErrInvalidClassFile, m)
	}
	return nil
}

// member is a parsed field or method declaration.
type member struct {
	access     uint16
	name       string
	descriptor string
	throws     []string // internal names, methods only
}

// classFile holds the declaration-level content of a class file. Code is
// skipped entirely.
type classFile struct {
	major, minor uint16
	access       uint16
	name         string // internal name, e.g. com/acme/Foo
	super        string
	interfaces   []string
	fields       []member
	methods      []member
	sourceFile   string
}

// reader walks a big-endian byte slice and remembers the first error.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidClassFile}, args...)...)
	}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail("truncated at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// constant is one constant pool slot. Only the fields needed to resolve
// names are kept.
type constant struct {
	tag   uint8
	utf8  string
	index uint16 // Class → name index
}

type constantPool []constant

func (cp constantPool) utf8(i uint16) (string, error) {
	if int(i) >= len(cp) || cp[i].tag != tagUtf8 {
		return "", fmt.Errorf("%w: constant %d is not a Utf8 entry", model.ErrInvalidClassFile, i)
	}
	return cp[i].utf8, nil
}

func (cp constantPool) className(i uint16) (string, error) {
	if int(i) >= len(cp) || cp[i].tag != tagClass {
		return "", fmt.Errorf("%w: constant %d is not a Class entry", model.ErrInvalidClassFile, i)
	}
	return cp.utf8(cp[i].index)
}

// parseClassFile reads the declarations of a class file.
func parseClassFile(data []byte) (*classFile, error) {
	if err := CheckMagic(data); err != nil {
		return nil, err
	}
	r := &reader{data: data, off: 4}
	cf := &classFile{}
	cf.minor = r.u2()
	cf.major = r.u2()

	cp, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	cf.access = r.u2()
	thisIdx, superIdx := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if cf.name, err = cp.className(thisIdx); err != nil {
		return nil, err
	}
	// java/lang/Object and module-info have no superclass.
	if superIdx != 0 {
		if cf.super, err = cp.className(superIdx); err != nil {
			return nil, err
		}
	}

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		iface, err := cp.className(r.u2())
		if err != nil {
			return nil, err
		}
		cf.interfaces = append(cf.interfaces, iface)
	}

	if cf.fields, err = readMembers(r, cp); err != nil {
		return nil, err
	}
	if cf.methods, err = readMembers(r, cp); err != nil {
		return nil, err
	}

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		name, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, err
		}
		if name == "SourceFile" && len(body) == 2 {
			if cf.sourceFile, err = cp.utf8(binary.BigEndian.Uint16(body)); err != nil {
				return nil, err
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return cf, nil
}

func readConstantPool(r *reader) (constantPool, error) {
	count := r.u2()
	cp := make(constantPool, count)
	for i := 1; i < int(count) && r.err == nil; i++ {
		tag := r.u1()
		cp[i].tag = tag
		switch tag {
		case tagUtf8:
			n := r.u2()
			cp[i].utf8 = decodeModifiedUTF8(r.bytes(int(n)))
		case tagClass, tagModule, tagPackage:
			cp[i].index = r.u2()
		case tagString, tagMethodType:
			r.u2()
		case tagMethodHandle:
			r.u1()
			r.u2()
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.u4()
		case tagLong, tagDouble:
			r.u4()
			r.u4()
			// Eight-byte constants take two slots.
			i++
		default:
			r.fail("unknown constant pool tag %d at index %d", tag, i)
		}
	}
	return cp, r.err
}

func readMembers(r *reader, cp constantPool) ([]member, error) {
	count := r.u2()
	members := make([]member, 0, count)
	for i := 0; i < int(count) && r.err == nil; i++ {
		m := member{access: r.u2()}
		nameIdx, descIdx := r.u2(), r.u2()
		if r.err != nil {
			break
		}
		var err error
		if m.name, err = cp.utf8(nameIdx); err != nil {
			return nil, err
		}
		if m.descriptor, err = cp.utf8(descIdx); err != nil {
			return nil, err
		}
		for n := r.u2(); n > 0 && r.err == nil; n-- {
			name, body, err := readAttribute(r, cp)
			if err != nil {
				return nil, err
			}
			if name != "Exceptions" || len(body) < 2 {
				continue
			}
			br := &reader{data: body}
			for k := br.u2(); k > 0 && br.err == nil; k-- {
				exc, err := cp.className(br.u2())
				if err != nil {
					return nil, err
				}
				m.throws = append(m.throws, exc)
			}
		}
		members = append(members, m)
	}
	return members, r.err
}

func readAttribute(r *reader, cp constantPool) (string, []byte, error) {
	nameIdx := r.u2()
	length := r.u4()
	body := r.bytes(int(length))
	if r.err != nil {
		return "", nil, r.err
	}
	name, err := cp.utf8(nameIdx)
	return name, body, err
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded as
// two bytes and supplementary characters as surrogate pairs.
func decodeModifiedUTF8(b []byte) string {
	runes := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			runes = append(runes, rune(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			runes = append(runes, rune(c&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			runes = append(runes, rune(c&0x0F)<<12|rune(b[i+1]&0x3F)<<6|rune(b[i+2]&0x3F))
			i += 3
		default:
			runes = append(runes, '�')
			i++
		}
	}
	// Join surrogate pairs.
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		if r := runes[i]; r >= 0xD800 && r < 0xDC00 && i+1 < len(runes) {
			if lo := runes[i+1]; lo >= 0xDC00 && lo < 0xE000 {
				out = append(out, 0x10000+(r-0xD800)<<10+(lo-0xDC00))
				i++
				continue
			}
		}
		out = append(out, runes[i])
	}
	return string(out)
}
