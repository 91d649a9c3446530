package replication

/**
This package copies the rows of one time range from a server table into a
client table over a plain TCP connection.

- Server
	The server listens on a port and serves one client at a time. It reads the
	requested range, scans the source table from "<start>00000000" up to (not
	including) "<end>99zzzzzz" and writes every row as a key line followed by
	one line per schema field. The connection is closed after the last row.

- Client
	The client sends the range it wants, decodes the rows and writes them to the
	destination table in batches of FlushThreshold rows. A failed attempt is
	retried from the start of the range. In dry-run mode the client only counts
	which rows already exist.

Unless the legacy protocol is used, both sides exchange a "PROTOCOL <version>"
line and the client gives up when the versions differ.
*/
