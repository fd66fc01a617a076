package cmdguard

// parsePowerShell scans PowerShell syntax. atStart tracks whether the
// scanner sits at the start of an expression, where & and ". " invoke
// a script rather than acting as operators.
func parsePowerShell(command string, p *Parsed) {
	var tok tokenBuilder
	inSingle, inDouble := false, false
	atStart := true

	for i := 0; i < len(command); i++ {
		c := command[i]

		if c == '\'' && !inDouble {
			inSingle = !inSingle
			tok.quoted = true
			atStart = false
			continue
		}
		if c == '"' && !inSingle {
			inDouble = !inDouble
			tok.quoted = true
			atStart = false
			continue
		}
		if inSingle {
			tok.add(c)
			continue
		}
		if inDouble {
			if c == '`' && i+1 < len(command) {
				i++
				tok.add(command[i])
				continue
			}
			if c == '$' {
				p.HasSubshell = true
			}
			tok.add(c)
			continue
		}

		if isBlank(c) {
			tok.flush(p)
			atStart = true
			continue
		}

		next := peek(command, i+1)
		switch {
		case c == '`':
			p.HasChain = true
			if i+1 < len(command) {
				i++
			}
			continue
		case c == '&' && next == '&':
			p.HasChain = true
			tok.end(p)
			i++
			atStart = true
			continue
		case c == '&' && atStart:
			p.HasSubshell = true
			tok.end(p)
			continue
		case c == '.' && atStart && (next == ' ' || next == '\t'):
			p.HasSubshell = true
			tok.end(p)
			continue
		}

		switch c {
		case ';':
			p.HasChain = true
		case '&':
			p.HasChain = true
		case '|':
			if next == '|' {
				p.HasChain = true
				i++
			} else {
				p.HasPipe = true
			}
		case '$', '{', '}', '(', ')':
			p.HasSubshell = true
		case '<', '>':
			p.HasRedirect = true
			if c == '>' && next == '>' {
				i++
			}
		default:
			tok.add(c)
			atStart = false
			continue
		}
		tok.end(p)
		atStart = c == ';' || c == '|'
	}

	if inSingle || inDouble {
		p.HasChain = true
	}
	tok.flush(p)
}
