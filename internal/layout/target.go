package layout

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Endian is the byte order of target memory.
type Endian uint8

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// Target describes the ABI target triple and its pointer properties.
type Target struct {
	Triple   string // e.g. "armv7-unknown-linux-gnueabihf"
	Arch     string // e.g. "arm", "x86_64"
	PtrSize  int    // bytes
	PtrAlign int    // bytes
	Endian   Endian

	// MaxScalarAlign caps the natural alignment of scalars wider than it
	// (8-byte scalars are 8-aligned on armv7, 16-byte ones are not).
	MaxScalarAlign int
}

// PtrBits returns the pointer width in bits.
func (t Target) PtrBits() int {
	return t.PtrSize * 8
}

// ObjSizeBound is the exclusive upper bound on the size of any object.
func (t Target) ObjSizeBound() uint64 {
	switch t.PtrBits() {
	case 16:
		return 1 << 15
	case 32:
		return 1 << 31
	default:
		return 1 << 47
	}
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:         "x86_64-unknown-linux-gnu",
		Arch:           "x86_64",
		PtrSize:        8,
		PtrAlign:       8,
		MaxScalarAlign: 16,
	}
}

// ARMv7HF is 32-bit ARM with the hard-float calling convention.
func ARMv7HF() Target {
	return Target{
		Triple:         "armv7-unknown-linux-gnueabihf",
		Arch:           "arm",
		PtrSize:        4,
		PtrAlign:       4,
		MaxScalarAlign: 8,
	}
}

// ARMv7 is 32-bit ARM with the soft-float calling convention.
func ARMv7() Target {
	t := ARMv7HF()
	t.Triple = "armv7-unknown-linux-gnueabi"
	return t
}

// TargetByTriple returns a built-in target by its triple.
func TargetByTriple(triple string) (Target, bool) {
	for _, t := range []Target{ARMv7HF(), ARMv7(), X86_64LinuxGNU()} {
		if t.Triple == triple {
			return t, true
		}
	}
	return Target{}, false
}

// TargetConfig is the TOML form of a Target.
type TargetConfig struct {
	Triple         string `toml:"triple"`
	Arch           string `toml:"arch"`
	PointerWidth   int    `toml:"pointer-width"`
	PointerAlign   int    `toml:"pointer-align"`
	Endian         string `toml:"endian"`
	MaxScalarAlign int    `toml:"max-scalar-align"`
}

// Target validates the configuration and converts it.
func (c TargetConfig) Target() (Target, error) {
	if strings.TrimSpace(c.Triple) == "" {
		return Target{}, fmt.Errorf("missing triple")
	}
	t := Target{Triple: c.Triple, Arch: c.Arch}
	if t.Arch == "" {
		t.Arch = archFromTriple(c.Triple)
	}
	switch c.PointerWidth {
	case 16, 32, 64:
		t.PtrSize = c.PointerWidth / 8
	default:
		return Target{}, fmt.Errorf("pointer-width must be 16, 32 or 64, got %d", c.PointerWidth)
	}
	t.PtrAlign = t.PtrSize
	if c.PointerAlign != 0 {
		if !isPowerOfTwo(c.PointerAlign) {
			return Target{}, fmt.Errorf("pointer-align %d is not a power of two", c.PointerAlign)
		}
		t.PtrAlign = c.PointerAlign
	}
	switch strings.ToLower(c.Endian) {
	case "", "little":
		t.Endian = LittleEndian
	case "big":
		t.Endian = BigEndian
	default:
		return Target{}, fmt.Errorf("unknown endian %q", c.Endian)
	}
	t.MaxScalarAlign = c.MaxScalarAlign
	if t.MaxScalarAlign == 0 {
		t.MaxScalarAlign = 2 * t.PtrSize
	}
	if !isPowerOfTwo(t.MaxScalarAlign) {
		return Target{}, fmt.Errorf("max-scalar-align %d is not a power of two", t.MaxScalarAlign)
	}
	return t, nil
}

// LoadTarget reads a TOML target description from path.
func LoadTarget(path string) (Target, error) {
	var cfg TargetConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Target{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("triple") {
		return Target{}, fmt.Errorf("%s: missing triple", path)
	}
	if !meta.IsDefined("pointer-width") {
		return Target{}, fmt.Errorf("%s: missing pointer-width", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Target{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	t, err := cfg.Target()
	if err != nil {
		return Target{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func archFromTriple(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	switch {
	case strings.HasPrefix(arch, "arm"), strings.HasPrefix(arch, "thumb"):
		return "arm"
	default:
		return arch
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
