package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"

	"chakravyuha/token"
)

// ChakirLexer tokenizes the `.chakir` textual IR surface. Grounded on
// kanso's `grammar.KansoLexer` (grammar/lexer.go in kanso): a
// single-state `lexer.MustStateful` table, longest-match-first, with
// sigilled identifiers pulled out as their own token kinds the way Kanso
// pulled out doc comments. Rule names come from the token package rather
// than being repeated as string literals here, so a lexical category can
// never drift out of sync with what the printer names it.
var ChakirLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{string(token.Comment), `;[^\n]*`, nil},
		{string(token.Str), `"(\\.|[^"\\])*"`, nil},
		{string(token.Local), `%[a-zA-Z_.][a-zA-Z0-9_.]*`, nil},
		{string(token.Global), `@[a-zA-Z_.][a-zA-Z0-9_.]*`, nil},
		{string(token.Ident), `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{string(token.Int), `-?[0-9]+`, nil},
		{string(token.Punct), `[(){}\[\]=,:*]`, nil},
		{string(token.Ws), `[ \t\r\n]+`, nil},
	},
})
