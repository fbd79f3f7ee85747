package config

// Version is the inkvm release. It is part of the compiled-program cache
// key, so bumping it invalidates cached images.
const Version = "0.3.0"

const SourceFileExt = ".ink"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".ink"}

// ConfigFileName is looked up in the working directory and its parents.
const ConfigFileName = "inkvm.yaml"

// Native function names
const (
	OutFuncName    = "out"
	StringFuncName = "string"
	NumberFuncName = "number"
	LenFuncName    = "len"
	CharFuncName   = "char"
	PointFuncName  = "point"
	TypeFuncName   = "type"
	KeysFuncName   = "keys"
)

// NativeNames lists the natives installed in every VM, in registry order.
var NativeNames = []string{
	OutFuncName,
	StringFuncName,
	NumberFuncName,
	LenFuncName,
	CharFuncName,
	PointFuncName,
	TypeFuncName,
	KeysFuncName,
}

// Optimizer pass names, in their default order.
const (
	PassConstProp = "constprop"
	PassCSE       = "cse"
	PassDCE       = "dce"
	PassInline    = "inline"
	PassTailCall  = "tailcall"
)

var DefaultPasses = []string{PassConstProp, PassCSE, PassInline, PassDCE, PassTailCall}

const (
	DefaultMaxIterations   = 8
	DefaultInlineThreshold = 16
	DefaultMaxFrames       = 100000
	DefaultCacheEntries    = 64
)
