// Package protocol exposes the broadcast engine over TCP.
//
// A connection carries exactly one request. The client writes a single JSON
// object and keeps the connection open; the server answers with one JSON
// object per line, one per recipient as each outcome becomes available, and
// closes the connection when the last recipient is done. A request that
// cannot be decoded gets a single InvalidData object instead. A client that
// closes or half-closes the connection after its request is treated as gone:
// replies still outstanding are abandoned and their options retracted.
//
// Request:
//
//	{"sender":"ci","recipients":["alice"],"message":"deploy?",
//	 "responses":{"timeout":5000,"keyboard":[["yes","no"]]}}
//
// Responses:
//
//	{"type":"Recipient","recipient":"alice","response":{"Ok":"yes"}}
//	{"type":"Recipient","recipient":"alice","response":{"Err":{"type":"Timeout"}}}
//	{"type":"InvalidData","error":{"type":"InvalidField","detail":"sender"}}
package protocol
