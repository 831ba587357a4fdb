// Package grammar implements the lexical primitives, the Content-Type grammar and
// the multipart body grammar used to split a multipart/related message.
//
// All parsers are plain functions over an input string. They keep no state
// between calls and are safe for concurrent use on independent inputs.
//
//	ContentType := MediaType Attribute* END
//	MediaType   := TokenString "/" TokenString
//	Attribute   := ";" WS TokenString WS "=" WS TokenOrQuotedValue WS
//
//	Parts       := Part* EndBoundary
//	Part        := StartBoundary HeaderBlock PartBody
//
// Header folding (continuation lines starting with whitespace) is not
// supported: such a line ends the header block and becomes the first line of
// the part body.
package grammar
