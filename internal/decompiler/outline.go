package decompiler

import (
	"context"
	"fmt"
	"strings"
)

// Outline renders a Java skeleton of a class from its declarations:
// package, modifiers, supertypes, fields and method signatures. Method
// bodies are not reconstructed. It needs no external tool, which makes it
// the default backend.
type Outline struct{}

// NewOutline returns the outline backend.
func NewOutline() *Outline {
	return &Outline{}
}

// Decompile implements Decompiler.
func (o *Outline) Decompile(ctx context.Context, classPath string, classBytes []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cf, err := parseClassFile(classBytes)
	if err != nil {
		return "", err
	}
	return renderOutline(cf), nil
}

// javaVersion maps a class-file major version to a Java release for the
// header comment. Versions from 49 (Java 5) onward follow major-44.
func javaVersion(major uint16) string {
	switch {
	case major >= 49:
		return fmt.Sprintf("Java %d", major-44)
	case major >= 45:
		return fmt.Sprintf("Java 1.%d", major-44)
	default:
		return "unknown"
	}
}

func renderOutline(cf *classFile) string {
	var b strings.Builder

	if cf.sourceFile != "" {
		fmt.Fprintf(&b, "// Compiled from %s\n", cf.sourceFile)
	}
	fmt.Fprintf(&b, "// Class version %d.%d (%s)\n", cf.major, cf.minor, javaVersion(cf.major))

	pkg, simple := splitInternalName(cf.name)
	if pkg != "" {
		fmt.Fprintf(&b, "package %s;\n", pkg)
	}
	b.WriteString("\n")

	b.WriteString(classHeader(cf, simple))
	b.WriteString(" {\n")

	for _, f := range cf.fields {
		if f.access&accSynthetic != 0 {
			continue
		}
		fmt.Fprintf(&b, "    %s;\n", fieldDecl(f))
	}
	if len(cf.fields) > 0 && len(cf.methods) > 0 {
		b.WriteString("\n")
	}
	isInterface := cf.access&accInterface != 0
	for _, m := range cf.methods {
		if m.access&(accSynthetic|accBridge) != 0 {
			continue
		}
		fmt.Fprintf(&b, "    %s\n", methodDecl(m, simple, isInterface))
	}

	b.WriteString("}\n")
	return b.String()
}

func classHeader(cf *classFile, simple string) string {
	var parts []string
	parts = append(parts, visibility(cf.access)...)

	var kind string
	switch {
	case cf.access&accAnnotation != 0:
		kind = "@interface"
	case cf.access&accInterface != 0:
		kind = "interface"
	case cf.access&accEnum != 0:
		kind = "enum"
	default:
		kind = "class"
		if cf.access&accAbstract != 0 {
			parts = append(parts, "abstract")
		}
		if cf.access&accFinal != 0 {
			parts = append(parts, "final")
		}
	}
	parts = append(parts, kind, simple)

	isInterface := cf.access&accInterface != 0
	if !isInterface && cf.super != "" && cf.super != "java/lang/Object" &&
		!(cf.access&accEnum != 0 && cf.super == "java/lang/Enum") {
		parts = append(parts, "extends", javaName(cf.super))
	}

	ifaces := make([]string, 0, len(cf.interfaces))
	for _, i := range cf.interfaces {
		if cf.access&accAnnotation != 0 && i == "java/lang/annotation/Annotation" {
			continue
		}
		ifaces = append(ifaces, javaName(i))
	}
	if len(ifaces) > 0 {
		keyword := "implements"
		if isInterface {
			keyword = "extends"
		}
		parts = append(parts, keyword, strings.Join(ifaces, ", "))
	}
	return strings.Join(parts, " ")
}

func fieldDecl(f member) string {
	parts := visibility(f.access)
	if f.access&accStatic != 0 {
		parts = append(parts, "static")
	}
	if f.access&accFinal != 0 {
		parts = append(parts, "final")
	}
	if f.access&accVolatile != 0 {
		parts = append(parts, "volatile")
	}
	if f.access&accTransient != 0 {
		parts = append(parts, "transient")
	}
	typ, _ := parseFieldType(f.descriptor)
	parts = append(parts, typ, f.name)
	return strings.Join(parts, " ")
}

func methodDecl(m member, simple string, inInterface bool) string {
	if m.name == "<clinit>" {
		return "static {}"
	}

	params, ret, err := parseMethodDescriptor(m.descriptor)
	if err != nil {
		return fmt.Sprintf("// %s%s (unreadable descriptor)", m.name, m.descriptor)
	}

	parts := visibility(m.access)
	abstract := m.access&accAbstract != 0
	if abstract && !inInterface {
		parts = append(parts, "abstract")
	}
	if inInterface && !abstract && m.access&accStatic == 0 && m.access&accPrivate == 0 {
		parts = append(parts, "default")
	}
	for _, flag := range []struct {
		bit  uint16
		word string
	}{
		{accStatic, "static"},
		{accFinal, "final"},
		{accSynchronized, "synchronized"},
		{accNative, "native"},
		{accStrict, "strictfp"},
	} {
		if m.access&flag.bit != 0 {
			parts = append(parts, flag.word)
		}
	}

	name := m.name
	if name == "<init>" {
		name = simple
	} else {
		parts = append(parts, ret)
	}

	args := make([]string, len(params))
	for i, p := range params {
		if i == len(params)-1 && m.access&accVarargs != 0 && strings.HasSuffix(p, "[]") {
			p = strings.TrimSuffix(p, "[]") + "..."
		}
		args[i] = fmt.Sprintf("%s arg%d", p, i)
	}
	sig := strings.Join(append(parts, fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))), " ")

	if len(m.throws) > 0 {
		throws := make([]string, len(m.throws))
		for i, t := range m.throws {
			throws[i] = javaName(t)
		}
		sig += " throws " + strings.Join(throws, ", ")
	}

	if abstract || m.access&accNative != 0 {
		return sig + ";"
	}
	return sig + " { /* compiled code */ }"
}

func visibility(access uint16) []string {
	switch {
	case access&accPublic != 0:
		return []string{"public"}
	case access&accProtected != 0:
		return []string{"protected"}
	case access&accPrivate != 0:
		return []string{"private"}
	default:
		return nil
	}
}

// splitInternalName splits "com/acme/Foo" into "com.acme" and "Foo".
func splitInternalName(name string) (pkg, simple string) {
	if i := strings.LastIndex(name, "/"); i != -1 {
		return strings.ReplaceAll(name[:i], "/", "."), name[i+1:]
	}
	return "", name
}

// javaName renders an internal name as source would show it. java.lang
// types lose their package; nested classes keep the '$' separator.
func javaName(internal string) string {
	dotted := strings.ReplaceAll(internal, "/", ".")
	if rest, ok := strings.CutPrefix(dotted, "java.lang."); ok && !strings.Contains(rest, ".") {
		return rest
	}
	return dotted
}

// parseFieldType decodes one field descriptor and returns the Java type
// and the number of bytes consumed.
func parseFieldType(desc string) (string, int) {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	if dims == len(desc) {
		return "", 0
	}

	var base string
	n := dims + 1
	switch desc[dims] {
	case 'B':
		base = "byte"
	case 'C':
		base = "char"
	case 'D':
		base = "double"
	case 'F':
		base = "float"
	case 'I':
		base = "int"
	case 'J':
		base = "long"
	case 'S':
		base = "short"
	case 'Z':
		base = "boolean"
	case 'V':
		base = "void"
	case 'L':
		end := strings.IndexByte(desc[dims:], ';')
		if end == -1 {
			return "", 0
		}
		base = javaName(desc[dims+1 : dims+end])
		n = dims + end + 1
	default:
		return "", 0
	}
	return base + strings.Repeat("[]", dims), n
}

// parseMethodDescriptor decodes "(ILjava/lang/String;)V" into parameter
// types and return type.
func parseMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	rest := desc[1:]
	var params []string
	for !strings.HasPrefix(rest, ")") {
		typ, n := parseFieldType(rest)
		if n == 0 {
			return nil, "", fmt.Errorf("bad parameter in method descriptor %q", desc)
		}
		params = append(params, typ)
		rest = rest[n:]
	}
	ret, n := parseFieldType(rest[1:])
	if n == 0 || n != len(rest)-1 {
		return nil, "", fmt.Errorf("bad return type in method descriptor %q", desc)
	}
	return params, ret, nil
}
