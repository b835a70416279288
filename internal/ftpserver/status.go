package ftpserver

// Reply codes and templates, grounded field-for-field on
// original_source/ftp/ftpstatusmessages.py's status_msgs. Formatted with
// fmt.Sprintf at the call site via (*Session).reply.
const (
	replyOpenDataConn   = "150 Opening %s mode data connection for file list"
	replyOpenConn       = "150 Opening %s connection for %s"
	replySuccess200     = "200 %s command successful."
	replyTypeSetOK      = "200 Type set to %s."
	replyStruOK         = "200 STRU F Ok."
	replyModeOK         = "200 MODE S Ok."
	replyFileDate       = "213 %04d%02d%02d%02d%02d%02d"
	replyFileSize       = "213 %d Bytes"
	replyHelpStart      = "214-The following commands are recognized"
	replyHelpEnd        = "214 Help done."
	replyServerType     = "215 %s Type: %s"
	replyServerReady    = "220 %s FTP server ready."
	replyGoodbye        = "221 Goodbye."
	replySuccess226     = "226 %s command successful."
	replyTransSuccess   = "226 Transfer successful."
	replyPasvModeMsg    = "227 Entering Passive Mode (%s,%d,%d)"
	replyLoginSuccess   = "230 Login Successful."
	replySuccess250     = "250 %s command successful."
	replySuccess257     = "257 %s command successful."
	replyAlreadyCurrent = "257 \"%s\" is the current directory."
	replyPassRequired   = "331 Password required"
	replyRestartXfer    = "350 Restarting at %d. Send STORE or RETRIEVE to initiate transfer."
	replyReadyForDest   = "350 File exists, ready for destination."
	replyNoDataConn     = "425 Can't build data connection"
	replyTransferAbort  = "426 Connection closed; transfer aborted."
	replyCmdUnknown     = "500 '%s': command not understood."
	replyInternalError  = "500 Internal error: %s"
	replyErrArgs        = "500 Bad command arguments"
	replyModeUnknown    = "502 Unimplemented MODE type"
	replyWrongByteSize  = "504 Byte size must be 8"
	replyStruUnknown    = "504 Unimplemented STRU type"
	replyNotAuth        = "530 You are not authorized to perform the '%s' command"
	replyLoginRequired  = "530 Please log in with USER and PASS"
	replyLoginMismatch  = "530 The username and password do not match."
	replyErrNoList      = "550 Could not list directory or file: %s"
	replyErrNoDir       = "550 \"%s\": No such directory."
	replyErrNoFile      = "550 \"%s\": No such file."
	replyErrNoDirFile   = "550 \"%s\": No such file or directory."
	replyErrIsNotFile   = "550 \"%s\": Is not a file"
	replyErrCreateDir   = "550 Error creating directory: %s"
	replyErrDeleteFile  = "550 Error deleting file: %s"
	replyErrDeleteDir   = "550 Error removing directory: %s"
	replyErrOpenRead    = "553 Could not open file for reading: %s"
	replyErrOpenWrite   = "553 Could not open file for writing: %s"
	replyErrIO          = "553 I/O Error: %s"
	replyErrRename      = "560 Could not rename \"%s\" to \"%s\": %s"
)
