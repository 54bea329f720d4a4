package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ServerScopedID derives the identifier of a record owned by a server:
// server + "/" + id, with both parts in Unicode NFC so that ids typed on
// different devices compare equal.
//
// An id that already carries the server's prefix is returned as is (after
// normalization), so applying ServerScopedID twice changes nothing.
func ServerScopedID(id, server string) string {
	id = norm.NFC.String(id)
	server = norm.NFC.String(server)
	if server == "" {
		return id
	}
	prefix := server + "/"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}
