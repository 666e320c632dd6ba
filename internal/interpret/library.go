package interpret

import (
	"fmt"
	"io"
	"strconv"

	"xic/internal/ierrors"
)

// intrinsicNames maps every surface spelling an intrinsic call may use,
// the bare name an interpreted HIR/LIR call site uses and the mangled
// runtime symbol abstract assembly would reference, onto one canonical
// key, so the dispatcher in InterpretLibrary recognizes either.
var intrinsicNames = map[string]string{
	"print": "print", "_Iprint_pai": "print",
	"println": "println", "_Iprintln_pai": "println",
	"readln": "readln", "_Ireadln_ai": "readln",
	"getchar": "getchar", "_Igetchar_i": "getchar",
	"eof": "eof", "_Ieof_b": "eof",
	"unparseInt": "unparseInt", "_IunparseInt_aii": "unparseInt",
	"parseInt": "parseInt", "_IparseInt_t2ibai": "parseInt",
	"assert": "assert", "_Iassert_pb": "assert",
	"xi_alloc": "xi_alloc", "_xi_alloc": "xi_alloc",
	"xi_out_of_bounds": "xi_out_of_bounds", "_xi_out_of_bounds": "xi_out_of_bounds",
}

// InterpretLibrary dispatches a call to name against the fixed intrinsic
// set. ok is false when name is not a recognized intrinsic, in which
// case the caller falls back to interpreting a user function.
func (g *Global) InterpretLibrary(name string, args []int64) (rets []int64, ok bool, err error) {
	key, known := intrinsicNames[name]
	if !known {
		return nil, false, nil
	}

	switch key {
	case "print":
		err = g.print(args[0], false)
	case "println":
		err = g.print(args[0], true)
	case "readln":
		var ptr int64
		ptr, err = g.readln()
		rets = []int64{ptr}
	case "getchar":
		var c int64
		c, err = g.getchar()
		rets = []int64{c}
	case "eof":
		rets = []int64{g.eofFlag()}
	case "unparseInt":
		var ptr int64
		ptr, err = g.unparseInt(args[0])
		rets = []int64{ptr}
	case "parseInt":
		var value, okFlag int64
		value, okFlag, err = g.parseInt(args[0])
		rets = []int64{value, okFlag}
	case "assert":
		err = g.assert(args[0])
	case "xi_alloc":
		var ptr int64
		ptr, err = g.Heap.Malloc(args[0])
		rets = []int64{ptr}
	case "xi_out_of_bounds":
		err = ierrors.New(ierrors.InvalidRead, "array index out of bounds")
	}

	return rets, true, err
}

// readString reads an xi array-of-char starting at ptr: the length lives
// one word below ptr.
func (g *Global) readString(ptr int64) (string, error) {
	length, err := g.Heap.Read(ptr - 1)
	if err != nil {
		return "", err
	}
	buf := make([]rune, length)
	for i := int64(0); i < length; i++ {
		c, err := g.Heap.Read(ptr + i)
		if err != nil {
			return "", err
		}
		if c < 0 || c > 0x10FFFF {
			return "", ierrors.New(ierrors.InvalidChar, "word %d is not a character", c)
		}
		buf[i] = rune(c)
	}
	return string(buf), nil
}

// writeString allocates a new xi array-of-char holding s and returns its
// pointer.
func (g *Global) writeString(s string) (int64, error) {
	runes := []rune(s)
	base, err := g.Heap.Malloc(int64(len(runes)+1) * WordSize)
	if err != nil {
		return 0, err
	}
	if err := g.Heap.Store(base, int64(len(runes))); err != nil {
		return 0, err
	}
	ptr := base + 1
	for i, r := range runes {
		if err := g.Heap.Store(ptr+int64(i), int64(r)); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

func (g *Global) print(ptr int64, newline bool) error {
	s, err := g.readString(ptr)
	if err != nil {
		return err
	}
	if newline {
		s += "\n"
	}
	_, err = io.WriteString(g.Stdout, s)
	return err
}

func (g *Global) readln() (int64, error) {
	line, err := g.Stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, ierrors.New(ierrors.InvalidRead, "reading stdin: %v", err)
	}
	line = trimNewline(line)
	return g.writeString(line)
}

func (g *Global) getchar() (int64, error) {
	b, err := g.Stdin.ReadByte()
	if err == io.EOF {
		return -1, nil
	}
	if err != nil {
		return 0, ierrors.New(ierrors.InvalidRead, "reading stdin: %v", err)
	}
	return int64(b), nil
}

func (g *Global) eofFlag() int64 {
	_, err := g.Stdin.Peek(1)
	if err != nil {
		return 1
	}
	return 0
}

func (g *Global) unparseInt(v int64) (int64, error) {
	return g.writeString(strconv.FormatInt(v, 10))
}

func (g *Global) parseInt(ptr int64) (int64, int64, error) {
	s, err := g.readString(ptr)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, 0, nil
	}
	return v, 1, nil
}

func (g *Global) assert(cond int64) error {
	if cond == 0 {
		return fmt.Errorf("xi: assertion failed")
	}
	return nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
