package cmdguard

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// parsePOSIX walks the bash AST. Anything the parser rejects (unbalanced
// quotes, stray operators) is treated as a chain so it never matches.
func parsePOSIX(command string, p *Parsed) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		p.HasChain = true
		p.Tokens = strings.Fields(command)
		return
	}
	if len(file.Stmts) > 1 {
		p.HasChain = true
	}

	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Stmt:
			if n.Background || n.Coprocess || n.Negated || n.Semicolon.IsValid() {
				p.HasChain = true
			}
			if len(n.Redirs) > 0 {
				p.HasRedirect = true
			}
		case *syntax.BinaryCmd:
			if n.Op == syntax.Pipe || n.Op == syntax.PipeAll {
				p.HasPipe = true
			} else {
				p.HasChain = true
			}
		case *syntax.CallExpr:
			for _, a := range n.Assigns {
				p.Tokens = append(p.Tokens, assignString(a))
			}
			for _, w := range n.Args {
				p.Tokens = append(p.Tokens, wordString(w))
			}
		case *syntax.CmdSubst, *syntax.ProcSubst, *syntax.ParamExp, *syntax.ArithmExp,
			*syntax.Subshell, *syntax.Block, *syntax.IfClause, *syntax.WhileClause,
			*syntax.ForClause, *syntax.CaseClause, *syntax.FuncDecl, *syntax.ArithmCmd,
			*syntax.TestClause, *syntax.DeclClause, *syntax.LetClause, *syntax.TimeClause,
			*syntax.CoprocClause, *syntax.ExtGlob:
			p.HasSubshell = true
		case *syntax.SglQuoted:
			if n.Dollar {
				p.HasChain = true
			}
		case *syntax.DblQuoted:
			if n.Dollar {
				p.HasChain = true
			}
		case *syntax.Lit:
			if strings.ContainsRune(n.Value, '\\') {
				p.HasChain = true
			}
		}
		return true
	})
}

func assignString(a *syntax.Assign) string {
	var sb strings.Builder
	if a.Name != nil {
		sb.WriteString(a.Name.Value)
	}
	if a.Append {
		sb.WriteString("+=")
	} else {
		sb.WriteByte('=')
	}
	if a.Value != nil {
		sb.WriteString(wordString(a.Value))
	}
	return sb.String()
}

// wordString renders a word with its quoting removed.
func wordString(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		writePart(&sb, part)
	}
	return sb.String()
}

func writePart(sb *strings.Builder, part syntax.WordPart) {
	switch x := part.(type) {
	case *syntax.Lit:
		sb.WriteString(x.Value)
	case *syntax.SglQuoted:
		sb.WriteString(x.Value)
	case *syntax.DblQuoted:
		for _, inner := range x.Parts {
			writePart(sb, inner)
		}
	default:
		// Expansions already flag the command; keep their source text.
		_ = syntax.NewPrinter().Print(sb, x)
	}
}
