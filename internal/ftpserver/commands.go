package ftpserver

// specialCommands never require a prior successful login, grounded on
// FTPServerChannel.special_commands.
var specialCommands = map[string]bool{
	"QUIT": true,
	"TYPE": true,
	"NOOP": true,
	"USER": true,
	"PASS": true,
}

// workerCommands touch the filesystem (or otherwise might block) and run
// on the dispatcher instead of inline on the read goroutine, grounded on
// FTPServerChannel.thread_commands.
var workerCommands = map[string]bool{
	"APPE": true,
	"CDUP": true,
	"CWD":  true,
	"DELE": true,
	"LIST": true,
	"NLST": true,
	"MDTM": true,
	"MKD":  true,
	"PASS": true,
	"RETR": true,
	"RMD":  true,
	"RNFR": true,
	"RNTO": true,
	"SIZE": true,
	"STOR": true,
	"STRU": true,
}

// knownCommands lists every verb the session can dispatch, used to reply
// "command not understood" for anything else.
var knownCommands = map[string]bool{
	"ABOR": true, "APPE": true, "CDUP": true, "CWD": true, "DELE": true,
	"HELP": true, "LIST": true, "MDTM": true, "MKD": true, "MODE": true,
	"NLST": true, "NOOP": true, "PASS": true, "PASV": true, "PORT": true,
	"PWD": true, "QUIT": true, "REST": true, "RETR": true, "RMD": true,
	"RNFR": true, "RNTO": true, "SIZE": true, "STOR": true, "STRU": true,
	"SYST": true, "TYPE": true, "USER": true,
}

func requiresAuth(verb string) bool { return !specialCommands[verb] }
func runsInWorker(verb string) bool { return workerCommands[verb] }
