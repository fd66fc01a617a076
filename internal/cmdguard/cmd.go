package cmdguard

// parseCmd scans cmd.exe syntax. Only double quotes group, and %VAR%
// expands even inside them.
func parseCmd(command string, p *Parsed) {
	var tok tokenBuilder
	inQuote := false

	for i := 0; i < len(command); i++ {
		c := command[i]
		if c == '"' {
			inQuote = !inQuote
			tok.quoted = true
			continue
		}
		if inQuote {
			if c == '%' {
				p.HasSubshell = true
			}
			tok.add(c)
			continue
		}
		if isBlank(c) {
			tok.flush(p)
			continue
		}

		switch c {
		case '&':
			p.HasChain = true
			tok.end(p)
			if peek(command, i+1) == '&' {
				i++
			}
		case '|':
			if peek(command, i+1) == '|' {
				p.HasChain = true
				i++
			} else {
				p.HasPipe = true
			}
			tok.end(p)
		case '<', '>':
			p.HasRedirect = true
			tok.end(p)
			if c == '>' && peek(command, i+1) == '>' {
				i++
			}
		case '^':
			// Escape: the next byte is taken literally, which hides
			// metacharacters from a naive prefix check.
			p.HasChain = true
			tok.end(p)
			if i+1 < len(command) {
				i++
			}
		case '%':
			p.HasSubshell = true
			tok.end(p)
		default:
			tok.add(c)
		}
	}

	if inQuote {
		p.HasChain = true
	}
	tok.flush(p)
}
