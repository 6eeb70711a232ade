package compiler

// knownTypeWords are the base-type keywords this restricted subset
// recognizes when reading a declaration's type prefix (spec.md §1
// scopes out a real C++ type system, so this is a flat allow-list
// rather than a declarator grammar).
var knownTypeWords = map[string]bool{
	"int": true, "char": true, "bool": true, "void": true,
	"double": true, "float": true, "long": true, "short": true,
	"unsigned": true, "auto": true, "size_t": true, "string": true,
}

// topSkipKeywords are tokens to be skipped at the top level per
// spec.md §1: they are recognized only so the parser can find their
// extent (to a ";" or a balanced "{ }"), never implemented as
// features.
var topSkipKeywords = map[string]bool{
	"using": true, "typedef": true, "template": true,
	"namespace": true, "struct": true, "class": true, "union": true,
}

func isTypeLeading(lit string) bool {
	return lit == "const" || knownTypeWords[lit]
}
