package decompiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/classlens/internal/model"
	"github.com/shinji-kodama/classlens/internal/testutil"
)

// TestOutline_MinimalClass verifies the full rendering of a simple class.
func TestOutline_MinimalClass(t *testing.T) {
	out, err := NewOutline().Decompile(context.Background(), "com/acme/Foo.class",
		testutil.ClassFile("com/acme/Foo.class"))
	require.NoError(t, err)

	expected := `// Class version 52.0 (Java 8)
package com.acme;

public class Foo {
    public int value;

    public Foo() { /* compiled code */ }
}
`
	assert.Equal(t, expected, out)
}

// TestOutline_Declarations covers supertypes, modifiers and descriptors.
func TestOutline_Declarations(t *testing.T) {
	b := &testutil.ClassBuilder{
		Name:       "com/acme/Service",
		Super:      "com/acme/Base",
		Interfaces: []string{"java/lang/Runnable", "java/io/Serializable"},
		Access:     testutil.AccPublic | testutil.AccFinal,
		SourceFile: "Service.java",
		Fields: []testutil.Member{
			{Access: testutil.AccPublic | testutil.AccStatic | testutil.AccFinal, Name: "NAMES", Descriptor: "[Ljava/lang/String;"},
			{Access: 0x0002, Name: "cache", Descriptor: "Ljava/util/Map;"},
		},
		Methods: []testutil.Member{
			{Access: testutil.AccPublic, Name: "<init>", Descriptor: "(I[[J)V"},
			{Access: testutil.AccStatic, Name: "<clinit>", Descriptor: "()V"},
			{Access: testutil.AccPublic | testutil.AccStatic | 0x0080, Name: "main", Descriptor: "([Ljava/lang/String;)V"},
			{Access: 0x0004 | 0x0100, Name: "hash", Descriptor: "(Ljava/lang/Object;)Z"},
		},
	}

	out, err := NewOutline().Decompile(context.Background(), "com/acme/Service.class", b.Bytes())
	require.NoError(t, err)

	assert.Contains(t, out, "// Compiled from Service.java\n")
	assert.Contains(t, out, "public final class Service extends com.acme.Base implements Runnable, java.io.Serializable {\n")
	assert.Contains(t, out, "    public static final String[] NAMES;\n")
	assert.Contains(t, out, "    private java.util.Map cache;\n")
	assert.Contains(t, out, "    public Service(int arg0, long[][] arg1) { /* compiled code */ }\n")
	assert.Contains(t, out, "    static {}\n")
	assert.Contains(t, out, "    public static void main(String... arg0) { /* compiled code */ }\n")
	assert.Contains(t, out, "    protected native boolean hash(Object arg0);\n")
}

// TestOutline_Interface verifies interface headers and abstract methods.
func TestOutline_Interface(t *testing.T) {
	b := &testutil.ClassBuilder{
		Name:       "Api",
		Interfaces: []string{"java/lang/AutoCloseable"},
		Access:     testutil.AccPublic | 0x0200 | 0x0400,
		Methods: []testutil.Member{
			{Access: testutil.AccPublic | 0x0400, Name: "call", Descriptor: "()Ljava/lang/String;"},
			{Access: testutil.AccPublic, Name: "name", Descriptor: "()Ljava/lang/String;"},
		},
	}

	out, err := NewOutline().Decompile(context.Background(), "Api.class", b.Bytes())
	require.NoError(t, err)

	assert.NotContains(t, out, "package ")
	assert.Contains(t, out, "public interface Api extends AutoCloseable {\n")
	assert.Contains(t, out, "    public String call();\n")
	assert.Contains(t, out, "    public default String name() { /* compiled code */ }\n")
}

// TestOutline_RejectsInvalidInput verifies bad magic and truncated input
// fail with ErrInvalidClassFile.
func TestOutline_RejectsInvalidInput(t *testing.T) {
	_, err := NewOutline().Decompile(context.Background(), "A.class", []byte("PK\x03\x04"))
	assert.ErrorIs(t, err, model.ErrInvalidClassFile)

	valid := testutil.ClassFile("A.class")
	_, err = NewOutline().Decompile(context.Background(), "A.class", valid[:len(valid)-3])
	assert.ErrorIs(t, err, model.ErrInvalidClassFile)
}

func TestOutline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOutline().Decompile(ctx, "A.class", testutil.ClassFile("A.class"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckMagic(t *testing.T) {
	assert.NoError(t, CheckMagic([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0}))
	assert.ErrorIs(t, CheckMagic([]byte{0xCA, 0xFE}), model.ErrInvalidClassFile)
	assert.ErrorIs(t, CheckMagic([]byte("nope")), model.ErrInvalidClassFile)
}

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
	}{
		{"()V", nil, "void"},
		{"(IJ)Z", []string{"int", "long"}, "boolean"},
		{"([BLjava/util/List;)[Ljava/lang/Object;", []string{"byte[]", "java.util.List"}, "Object[]"},
		{"(Lcom/acme/Outer$Inner;)C", []string{"com.acme.Outer$Inner"}, "char"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			params, ret, err := parseMethodDescriptor(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.params, params)
			assert.Equal(t, tt.ret, ret)
		})
	}

	for _, bad := range []string{"", "V", "(I", "(Q)V", "()", "(Ljava/lang/String)V"} {
		_, _, err := parseMethodDescriptor(bad)
		assert.Error(t, err, bad)
	}
}

func TestJavaName(t *testing.T) {
	assert.Equal(t, "String", javaName("java/lang/String"))
	assert.Equal(t, "java.lang.reflect.Method", javaName("java/lang/reflect/Method"))
	assert.Equal(t, "com.acme.Foo", javaName("com/acme/Foo"))
}

func TestDecodeModifiedUTF8(t *testing.T) {
	assert.Equal(t, "abc", decodeModifiedUTF8([]byte("abc")))
	assert.Equal(t, "\x00", decodeModifiedUTF8([]byte{0xC0, 0x80}))
	assert.Equal(t, "é", decodeModifiedUTF8([]byte{0xC3, 0xA9}))
	// U+1F600 as a surrogate pair, each half three bytes.
	assert.Equal(t, "😀", decodeModifiedUTF8([]byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}))
}
