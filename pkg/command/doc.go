// Package command implements the application-level message exchanged over an
// nxblue socket.
//
// A Command is an operation name plus an ordered list of string parameters.
// On the wire it is a single line of text with the fields joined by a
// semicolon:
//
//	MOVE;10;20
//
// # Escaping
//
// Parameter values may contain any character. The four characters that
// would break the framing are escaped with a backslash:
//
//	\   ->  \\
//	;   ->  \;
//	LF  ->  \n
//	CR  ->  \r
//
// Values that contain none of them are written verbatim, so commands built
// from plain tokens look exactly like the unescaped form used by older
// firmware.
package command
