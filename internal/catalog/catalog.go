// Package catalog loads type, interface and signature declarations from TOML
// into a types.Interner.
package catalog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"layoutcore/internal/abi"
	"layoutcore/internal/layout"
	"layoutcore/internal/types"
)

type fileSchema struct {
	Target     *layout.TargetConfig `toml:"target"`
	Structs    []structDecl         `toml:"struct"`
	Interfaces []interfaceDecl      `toml:"interface"`
	Fns        []fnDecl             `toml:"fn"`
	Impls      []implDecl           `toml:"impl"`
	Drops      []dropDecl           `toml:"drop"`
	Signatures []signatureDecl      `toml:"signature"`
}

type structDecl struct {
	Name   string      `toml:"name"`
	Packed bool        `toml:"packed"`
	Align  int         `toml:"align"`
	Fields []fieldDecl `toml:"field"`
}

type fieldDecl struct {
	Name  string `toml:"name"`
	Type  string `toml:"type"`
	Align int    `toml:"align"`
}

type interfaceDecl struct {
	Name    string       `toml:"name"`
	Params  int          `toml:"params"`
	Methods []methodDecl `toml:"method"`
}

type methodDecl struct {
	Name    string `toml:"name"`
	Default string `toml:"default"`
	Generic bool   `toml:"generic"`
}

type fnDecl struct {
	Name     string   `toml:"name"`
	Generics int      `toml:"generics"`
	Params   []string `toml:"params"`
	Result   string   `toml:"result"`
}

type implDecl struct {
	Type      string            `toml:"type"`
	Interface string            `toml:"interface"`
	Methods   map[string]string `toml:"methods"`
}

type dropDecl struct {
	Type string `toml:"type"`
	Fn   string `toml:"fn"`
}

type signatureDecl struct {
	Name     string   `toml:"name"`
	Params   []string `toml:"params"`
	Ret      string   `toml:"ret"`
	Conv     string   `toml:"conv"`
	Variadic bool     `toml:"variadic"`
}

// Catalog is a loaded declaration file.
type Catalog struct {
	Types *types.Interner
	// Target is set when the file carries a [target] table.
	Target    layout.Target
	HasTarget bool

	Signatures []abi.Signature

	structs     map[string]types.TypeID
	structOrder []string
	interfaces  map[string]types.InterfaceID
	fns         map[string]types.FnID
	regions     map[string]types.RegionID
}

// New returns an empty catalog over a fresh interner.
func New() *Catalog {
	return &Catalog{
		Types:      types.NewInterner(),
		structs:    make(map[string]types.TypeID, 16),
		interfaces: make(map[string]types.InterfaceID, 8),
		fns:        make(map[string]types.FnID, 16),
		regions:    make(map[string]types.RegionID, 4),
	}
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	var file fileSchema
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	c, err := build(&file, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Decode reads a catalog from r.
func Decode(r io.Reader) (*Catalog, error) {
	var file fileSchema
	meta, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return build(&file, meta)
}

func build(file *fileSchema, meta toml.MetaData) (*Catalog, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	c := New()
	if meta.IsDefined("target") {
		if !meta.IsDefined("target", "pointer-width") {
			return nil, declError(ErrInvalid, "target", "", "missing pointer-width")
		}
		t, err := file.Target.Target()
		if err != nil {
			return nil, declError(ErrInvalid, "target", file.Target.Triple, "%v", err)
		}
		c.Target, c.HasTarget = t, true
	}

	steps := []func(*fileSchema) error{
		c.declareStructs,
		c.declareInterfaces,
		c.defineStructs,
		c.defineFns,
		c.defineDefaults,
		c.defineImpls,
		c.defineDrops,
		c.defineSignatures,
	}
	for _, step := range steps {
		if err := step(file); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Structs are registered by name first so fields may refer to any of them.
func (c *Catalog) declareStructs(file *fileSchema) error {
	for _, decl := range file.Structs {
		name := normName(decl.Name)
		if name == "" {
			return declError(ErrInvalid, "struct", decl.Name, "missing name")
		}
		if _, dup := c.structs[name]; dup {
			return declError(ErrDuplicate, "struct", name, "struct declared twice")
		}
		if _, ok := c.primitive(name); ok {
			return declError(ErrInvalid, "struct", name, "name shadows a primitive type")
		}
		id := c.Types.RegisterStruct(name)
		attrs := types.LayoutAttrs{Packed: decl.Packed}
		if decl.Align != 0 {
			align := decl.Align
			attrs.AlignOverride = &align
		}
		if err := attrs.Validate(); err != nil {
			return declError(ErrInvalid, "struct", name, "%v", err)
		}
		c.Types.SetTypeLayoutAttrs(id, attrs)
		c.structs[name] = id
		c.structOrder = append(c.structOrder, name)
	}
	return nil
}

func (c *Catalog) declareInterfaces(file *fileSchema) error {
	for _, decl := range file.Interfaces {
		name := normName(decl.Name)
		if name == "" {
			return declError(ErrInvalid, "interface", decl.Name, "missing name")
		}
		if _, dup := c.interfaces[name]; dup {
			return declError(ErrDuplicate, "interface", name, "interface declared twice")
		}
		params, err := safecast.Conv[uint32](decl.Params)
		if err != nil {
			return declError(ErrInvalid, "interface", name, "bad params %d", decl.Params)
		}
		methods := make([]types.InterfaceMethod, len(decl.Methods))
		seen := make(map[string]struct{}, len(decl.Methods))
		for i, m := range decl.Methods {
			mname := normName(m.Name)
			if _, dup := seen[mname]; dup || mname == "" {
				return declError(ErrInvalid, "interface", name, "bad or repeated method name %q", m.Name)
			}
			seen[mname] = struct{}{}
			methods[i] = types.InterfaceMethod{Name: mname, Generic: m.Generic}
		}
		c.interfaces[name] = c.Types.RegisterInterface(types.InterfaceInfo{
			Name:    name,
			Params:  params,
			Methods: methods,
		})
	}
	return nil
}

func (c *Catalog) defineStructs(file *fileSchema) error {
	for _, decl := range file.Structs {
		name := normName(decl.Name)
		fields := make([]types.StructField, len(decl.Fields))
		for i, f := range decl.Fields {
			ty, err := c.parseType(f.Type)
			if err != nil {
				return within(err, "struct", name+"."+f.Name)
			}
			fields[i] = types.StructField{Name: normName(f.Name), Type: ty}
			if f.Align != 0 {
				align := f.Align
				if align < 0 || align&(align-1) != 0 {
					return declError(ErrInvalid, "struct", name+"."+f.Name, "align(%d) is not a power of two", align)
				}
				fields[i].Layout.AlignOverride = &align
			}
		}
		c.Types.SetStructFields(c.structs[name], fields)
	}
	return nil
}

func (c *Catalog) defineFns(file *fileSchema) error {
	for _, decl := range file.Fns {
		name := normName(decl.Name)
		if name == "" {
			return declError(ErrInvalid, "fn", decl.Name, "missing name")
		}
		if _, dup := c.fns[name]; dup {
			return declError(ErrDuplicate, "fn", name, "function declared twice")
		}
		generics, err := safecast.Conv[uint32](decl.Generics)
		if err != nil {
			return declError(ErrInvalid, "fn", name, "bad generics %d", decl.Generics)
		}
		params, err := c.parseTypes(decl.Params)
		if err != nil {
			return within(err, "fn", name)
		}
		result := types.NoTypeID
		if strings.TrimSpace(decl.Result) != "" {
			if result, err = c.parseType(decl.Result); err != nil {
				return within(err, "fn", name)
			}
		}
		c.fns[name] = c.Types.RegisterFnDef(types.FnDef{
			Name:     name,
			Generics: generics,
			Params:   params,
			Result:   result,
		})
	}
	return nil
}

// defineDefaults attaches provided bodies once functions exist.
func (c *Catalog) defineDefaults(file *fileSchema) error {
	for _, decl := range file.Interfaces {
		name := normName(decl.Name)
		info, _ := c.Types.InterfaceInfo(c.interfaces[name])
		for i, m := range decl.Methods {
			if strings.TrimSpace(m.Default) == "" {
				continue
			}
			fn, ok := c.fns[normName(m.Default)]
			if !ok {
				return declError(ErrUnknownName, "interface", name, "default body %q of %s is not declared", m.Default, m.Name)
			}
			info.Methods[i].Default = fn
		}
	}
	return nil
}

func (c *Catalog) defineImpls(file *fileSchema) error {
	for _, decl := range file.Impls {
		item := decl.Interface + " for " + decl.Type
		self, err := c.parseType(decl.Type)
		if err != nil {
			return within(err, "impl", item)
		}
		ex, err := c.parseExistential(decl.Interface)
		if err != nil {
			return within(err, "impl", item)
		}
		ref, _ := c.Types.Existential(ex)
		info, _ := c.Types.InterfaceInfo(ref.Interface)
		known := make(map[string]struct{}, len(info.Methods))
		for _, m := range info.Methods {
			known[m.Name] = struct{}{}
		}
		methods := make(map[string]types.FnID, len(decl.Methods))
		for method, fnName := range decl.Methods {
			method = normName(method)
			if _, ok := known[method]; !ok {
				return declError(ErrUnknownName, "impl", item, "%s has no method %q", info.Name, method)
			}
			fn, ok := c.fns[normName(fnName)]
			if !ok {
				return declError(ErrUnknownName, "impl", item, "function %q is not declared", fnName)
			}
			methods[method] = fn
		}
		if _, dup := c.Types.ImplFor(self, ref.Interface, ref.Args); dup {
			return declError(ErrDuplicate, "impl", item, "implemented twice")
		}
		c.Types.RegisterImpl(self, ref.Interface, ref.Args, methods)
	}
	return nil
}

func (c *Catalog) defineDrops(file *fileSchema) error {
	for _, decl := range file.Drops {
		ty, err := c.parseType(decl.Type)
		if err != nil {
			return within(err, "drop", decl.Type)
		}
		fn, ok := c.fns[normName(decl.Fn)]
		if !ok {
			return declError(ErrUnknownName, "drop", decl.Type, "function %q is not declared", decl.Fn)
		}
		if _, dup := c.Types.DropFn(ty); dup {
			return declError(ErrDuplicate, "drop", decl.Type, "destructor declared twice")
		}
		c.Types.RegisterDrop(ty, fn)
	}
	return nil
}

func (c *Catalog) defineSignatures(file *fileSchema) error {
	seen := make(map[string]struct{}, len(file.Signatures))
	for _, decl := range file.Signatures {
		name := normName(decl.Name)
		if name == "" {
			return declError(ErrInvalid, "signature", decl.Name, "missing name")
		}
		if _, dup := seen[name]; dup {
			return declError(ErrDuplicate, "signature", name, "signature declared twice")
		}
		seen[name] = struct{}{}
		params, err := c.parseTypes(decl.Params)
		if err != nil {
			return within(err, "signature", name)
		}
		ret := types.NoTypeID
		if strings.TrimSpace(decl.Ret) != "" {
			if ret, err = c.parseType(decl.Ret); err != nil {
				return within(err, "signature", name)
			}
		}
		conv, err := abi.ParseConv(decl.Conv)
		if err != nil {
			return declError(ErrInvalid, "signature", name, "%v", err)
		}
		c.Signatures = append(c.Signatures, abi.Signature{
			Name:      name,
			Params:    params,
			Ret:       ret,
			Conv:      conv,
			CVariadic: decl.Variadic,
		})
	}
	return nil
}

func (c *Catalog) parseTypes(exprs []string) ([]types.TypeID, error) {
	out := make([]types.TypeID, len(exprs))
	for i, expr := range exprs {
		ty, err := c.parseType(expr)
		if err != nil {
			return nil, err
		}
		out[i] = ty
	}
	return out, nil
}

// Type parses a type expression against the catalog's declarations.
func (c *Catalog) Type(expr string) (types.TypeID, error) {
	return c.parseType(expr)
}

// Existential parses an interface reference such as `Sink<i32>`.
func (c *Catalog) Existential(expr string) (types.ExistentialID, error) {
	return c.parseExistential(expr)
}

// Struct returns the declared struct with the given name.
func (c *Catalog) Struct(name string) (types.TypeID, bool) {
	id, ok := c.structs[normName(name)]
	return id, ok
}

// StructNames returns declared struct names in file order.
func (c *Catalog) StructNames() []string {
	return append([]string(nil), c.structOrder...)
}

// Fn returns the declared function with the given name.
func (c *Catalog) Fn(name string) (types.FnID, bool) {
	id, ok := c.fns[normName(name)]
	return id, ok
}

// InterfaceNames returns declared interface names in sorted order.
func (c *Catalog) InterfaceNames() []string {
	names := make([]string, 0, len(c.interfaces))
	for name := range c.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signature returns the declared signature with the given name.
func (c *Catalog) Signature(name string) (abi.Signature, bool) {
	name = normName(name)
	for _, sig := range c.Signatures {
		if sig.Name == name {
			return sig, true
		}
	}
	return abi.Signature{}, false
}

func (c *Catalog) region(name string) types.RegionID {
	if id, ok := c.regions[name]; ok {
		return id
	}
	id := types.RegionID(len(c.regions) + 1)
	c.regions[name] = id
	return id
}

func (c *Catalog) primitive(name string) (types.TypeID, bool) {
	b := c.Types.Builtins()
	switch name {
	case "bool":
		return b.Bool, true
	case "str":
		return b.Str, true
	case "i8":
		return b.Int8, true
	case "i16":
		return b.Int16, true
	case "i32":
		return b.Int32, true
	case "i64":
		return b.Int64, true
	case "isize":
		return b.Isize, true
	case "u8":
		return b.Uint8, true
	case "u16":
		return b.Uint16, true
	case "u32":
		return b.Uint32, true
	case "u64":
		return b.Uint64, true
	case "usize":
		return b.Usize, true
	case "f32":
		return b.Float32, true
	case "f64":
		return b.Float64, true
	default:
		return types.NoTypeID, false
	}
}
