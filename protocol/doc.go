package protocol

/**
This package defines the line protocol spoken between a replication client and
server.

- Request (client -> server)
	<startTimestamp>\n
	<endTimestamp>\n
	PROTOCOL <version>\n      (omitted in legacy mode)

- Response (server -> client)
	PROTOCOL <version>\n      (omitted in legacy mode)
	then for every row in ascending key order:
	<rowKey>\n
	<value of field 1>\n
	...
	<value of field N>\n

	Embedded newlines inside a value are replaced by the Sentinel. The server
	closes the connection after the last row.

The field list for a version is fixed, so values carry no names: position is
the field identity.
*/
