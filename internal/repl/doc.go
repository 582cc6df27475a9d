// Package repl is the master's line-oriented operator console.
//
// Commands:
//
//	list                      connected agents and their hostnames
//	send <hostname> <data...> unicast Custom(data) to one agent
//	broadcast                 push Update to every agent
//	history [n]               last n fleet events (default 20)
//	help                      command summary
//	quit | exit               leave the console; the master keeps serving
//
// End of input behaves like quit. Lines are split on whitespace; the send
// payload is the remaining tokens joined by single spaces.
package repl
