// Package wire defines the plaintext message shapes exchanged between the
// hub and its devices.
//
// Messages are JSON objects. A request always carries an "action" key and a
// response always carries a "result" key:
//
//	handshake request:  {"action":"connect","devid":"Light1","devtype":"SmartLight","user":"...","pass":"..."}
//	handshake response: {"result":"success"} | {"result":"failure"}
//	command request:    {"action":"set_thres","value":80}
//	command response:   {"result":"success"} | {"result":{"identifier":"Light1",...}}
//
// Each message travels as exactly one envelope (see package envelope).
package wire
