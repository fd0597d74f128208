package core

// dispatch routes cmd to exactly one handler. Unknown tags are ignored
// without a result; so are payloads that do not fit their tag.
func (b *Bridge) dispatch(cmd Command) {
	switch cmd.Tag {
	case CmdOpen:
		switch p := cmd.Payload.(type) {
		case OpenPayload:
			b.open(p)
		case *OpenPayload:
			if p == nil {
				b.dropMalformed(cmd)
				return
			}
			b.open(*p)
		case string:
			b.open(OpenPayload{URL: p})
		default:
			b.dropMalformed(cmd)
		}
	case CmdSend:
		switch p := cmd.Payload.(type) {
		case SendPayload:
			b.send(p)
		case *SendPayload:
			if p == nil {
				b.dropMalformed(cmd)
				return
			}
			b.send(*p)
		default:
			b.dropMalformed(cmd)
		}
	case CmdClose:
		switch p := cmd.Payload.(type) {
		case ClosePayload:
			b.close(p)
		case *ClosePayload:
			if p == nil {
				b.dropMalformed(cmd)
				return
			}
			b.close(*p)
		default:
			b.dropMalformed(cmd)
		}
	default:
		b.logger.Debug("Ignoring unknown command", "tag", cmd.Tag)
	}
}

func (b *Bridge) dropMalformed(cmd Command) {
	b.logger.Warn("Dropping command with mismatched payload",
		"tag", cmd.Tag,
		"error", ErrBadCommand)
}
