package ftpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/vfs"
)

var typeMap = map[string]string{"a": "ASCII", "i": "Binary", "e": "EBCDIC", "l": "Binary"}

// Session holds per-connection FTP control-channel state, grounded on
// FTPServerChannel's instance attributes (cwd, credentials,
// transfer_mode, passive_acceptor, client_addr, _rnfr,
// restart_position).
type Session struct {
	cb  *server.ChannelBase
	srv *Server

	localAddr      string
	clientDataAddr string

	cwd           string
	authenticated bool
	username      string
	fs            vfs.Filesystem

	transferMode    string
	restartPosition int64
	rnfr            string

	passiveListener net.Listener
}

func newSession(srv *Server, cb *server.ChannelBase, localAddr, remoteIP string) *Session {
	return &Session{
		cb:             cb,
		srv:            srv,
		localAddr:      localAddr,
		clientDataAddr: net.JoinHostPort(remoteIP, "20"),
		cwd:            "/",
		transferMode:   "a",
	}
}

func (s *Session) reply(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...) + "\r\n"
	s.cb.Write([]byte(line))
}

// generatePath resolves a (possibly relative) client-supplied path
// against cwd, matching FTPServerChannel._generatePath.
func (s *Session) generatePath(args string) string {
	if args == "" {
		args = "."
	}
	joined := path.Join(s.cwd, args)
	return path.Clean("/" + joined)
}

func (s *Session) filesystem() vfs.Filesystem { return s.fs }

// dispatch runs one command, deciding between inline execution and the
// worker-routed Task path is the caller's job (see Server.ChannelFactory
// / Task.Service); dispatch itself just executes.
func (s *Session) dispatch(ctx context.Context, verb, args string) {
	switch verb {
	case tooLongVerb:
		s.reply(replyErrArgs)
	case "USER":
		s.cmdUser(args)
	case "PASS":
		s.cmdPass(ctx, args)
	case "QUIT":
		s.cmdQuit()
	case "TYPE":
		s.cmdType(args)
	case "NOOP":
		s.reply(replySuccess200, "NOOP")
	case "SYST":
		s.reply(replyServerType, "UNIX", "L8")
	case "PWD":
		s.reply(replyAlreadyCurrent, s.cwd)
	case "CWD":
		s.cmdCwd(ctx, args)
	case "CDUP":
		s.cmdCwd(ctx, "..")
	case "MKD":
		s.cmdMkd(ctx, args)
	case "RMD":
		s.cmdRmd(ctx, args)
	case "DELE":
		s.cmdDele(ctx, args)
	case "RNFR":
		s.cmdRnfr(ctx, args)
	case "RNTO":
		s.cmdRnto(ctx, args)
	case "SIZE":
		s.cmdSize(ctx, args)
	case "MDTM":
		s.cmdMdtm(ctx, args)
	case "MODE":
		s.cmdMode(args)
	case "STRU":
		s.cmdStru(args)
	case "HELP":
		s.reply(replyHelpStart)
		s.reply("Help goes here somewhen.")
		s.reply(replyHelpEnd)
	case "PASV":
		s.cmdPasv()
	case "PORT":
		s.cmdPort(args)
	case "REST":
		s.cmdRest(args)
	case "ABOR":
		s.reply(replyTransferAbort)
	case "LIST":
		s.cmdList(ctx, args, true)
	case "NLST":
		s.cmdList(ctx, args, false)
	case "RETR":
		s.cmdRetr(ctx, args)
	case "STOR":
		s.cmdStor(ctx, args, false)
	case "APPE":
		s.cmdStor(ctx, args, true)
	default:
		s.reply(replyCmdUnknown, verb)
	}
}

func (s *Session) cmdUser(args string) {
	s.authenticated = false
	if len(strings.TrimSpace(args)) > 0 {
		s.username = args
		s.reply(replyPassRequired)
	} else {
		s.reply(replyErrArgs)
	}
}

func (s *Session) cmdPass(ctx context.Context, password string) {
	s.authenticated = false
	creds := vfs.Credentials{User: s.username + ":" + password}
	fs, err := s.srv.Access.Open(ctx, creds)
	if err != nil {
		s.reply(replyLoginMismatch)
		s.cb.CloseWhenDone()
		return
	}
	s.fs = fs
	s.authenticated = true
	s.reply(replyLoginSuccess)
}

func (s *Session) cmdQuit() {
	s.reply(replyGoodbye)
	s.closePassive()
	if s.fs != nil {
		s.fs.Close()
	}
	s.cb.CloseWhenDone()
}

func (s *Session) cmdType(args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.reply(replyErrArgs)
		return
	}
	t := strings.ToLower(fields[0])
	switch {
	case t != "a" && t != "i" && t != "l":
		s.reply(replyErrArgs)
	case t == "l" && len(fields) > 2 && fields[2] != "8":
		s.reply(replyWrongByteSize)
	default:
		s.transferMode = t
		s.reply(replyTypeSetOK, typeMap[t])
	}
}

func (s *Session) cmdCwd(ctx context.Context, args string) {
	p := s.generatePath(args)
	kind, err := s.filesystem().Type(ctx, p)
	if err != nil || kind != vfs.KindDir {
		s.reply(replyErrNoDir, p)
		return
	}
	s.cwd = p
	s.reply(replySuccess250, "CWD")
}

func (s *Session) cmdMkd(ctx context.Context, args string) {
	if args == "" {
		s.reply(replyErrArgs)
		return
	}
	p := s.generatePath(args)
	if err := s.filesystem().Mkdir(ctx, p); err != nil {
		s.reply(replyErrCreateDir, err.Error())
		return
	}
	s.reply(replySuccess257, "MKD")
}

func (s *Session) cmdRmd(ctx context.Context, args string) {
	if args == "" {
		s.reply(replyErrArgs)
		return
	}
	p := s.generatePath(args)
	if err := s.filesystem().Rmdir(ctx, p); err != nil {
		s.reply(replyErrDeleteDir, err.Error())
		return
	}
	s.reply(replySuccess250, "RMD")
}

func (s *Session) cmdDele(ctx context.Context, args string) {
	if args == "" {
		s.reply(replyErrArgs)
		return
	}
	p := s.generatePath(args)
	if err := s.filesystem().Remove(ctx, p); err != nil {
		s.reply(replyErrDeleteFile, err.Error())
		return
	}
	s.reply(replySuccess250, "DELE")
}

func (s *Session) cmdRnfr(ctx context.Context, args string) {
	p := s.generatePath(args)
	if _, err := s.filesystem().Info(ctx, p); err != nil {
		s.reply(replyErrNoFile, p)
		return
	}
	s.rnfr = p
	s.reply(replyReadyForDest)
}

func (s *Session) cmdRnto(ctx context.Context, args string) {
	p := s.generatePath(args)
	if s.rnfr == "" {
		s.reply(replyErrRename, "", p, "no source, call RNFR first")
		return
	}
	err := s.filesystem().Rename(ctx, s.rnfr, p)
	if err != nil {
		s.reply(replyErrRename, s.rnfr, p, err.Error())
	} else {
		s.reply(replySuccess250, "RNTO")
	}
	s.rnfr = ""
}

func (s *Session) cmdSize(ctx context.Context, args string) {
	p := s.generatePath(args)
	info, err := s.filesystem().Info(ctx, p)
	if err != nil || info.Kind != vfs.KindFile {
		s.reply(replyErrNoFile, p)
		return
	}
	s.reply(replyFileSize, info.Size)
}

func (s *Session) cmdMdtm(ctx context.Context, args string) {
	if len(strings.Fields(args)) > 1 {
		s.reply(replyErrArgs)
		return
	}
	p := s.generatePath(args)
	info, err := s.filesystem().Info(ctx, p)
	if err != nil || info.Kind != vfs.KindFile {
		s.reply(replyErrIsNotFile, p)
		return
	}
	t := info.ModTime.UTC()
	s.reply(replyFileDate, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func (s *Session) cmdMode(args string) {
	if len(args) == 1 && strings.EqualFold(args, "s") {
		s.reply(replyModeOK)
	} else {
		s.reply(replyModeUnknown)
	}
}

func (s *Session) cmdStru(args string) {
	if len(args) == 1 && strings.EqualFold(args, "f") {
		s.reply(replyStruOK)
	} else {
		s.reply(replyStruUnknown)
	}
}

func (s *Session) cmdPasv() {
	s.closePassive()
	ln, err := s.openPassiveListener()
	if err != nil {
		s.reply(replyNoDataConn)
		return
	}
	s.passiveListener = ln
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	host, _, _ := net.SplitHostPort(s.localAddr)
	s.reply(replyPasvModeMsg, strings.ReplaceAll(host, ".", ","), port/256, port%256)
}

func (s *Session) cmdPort(args string) {
	info := strings.Split(args, ",")
	if len(info) != 6 {
		s.reply(replyErrArgs)
		return
	}
	ip := strings.Join(info[:4], ".")
	p1, err1 := strconv.Atoi(info[4])
	p2, err2 := strconv.Atoi(info[5])
	if err1 != nil || err2 != nil {
		s.reply(replyErrArgs)
		return
	}
	s.closePassive()
	s.clientDataAddr = net.JoinHostPort(ip, strconv.Itoa(p1*256+p2))
	s.reply(replySuccess200, "PORT")
}

func (s *Session) cmdRest(args string) {
	pos, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		s.reply(replyErrArgs)
		return
	}
	s.restartPosition = pos
	s.reply(replyRestartXfer, pos)
}

// pathArgument strips leading "-flag" tokens (as real FTP clients send,
// e.g. "-l", "-la /pub") and returns whatever path argument remains,
// a simplified stand-in for the original's getopt('lad') parsing: we
// don't validate or act on the flags themselves, only skip them, since
// every supported LIST variant here always returns the same listing.
func pathArgument(args string) string {
	for _, field := range strings.Fields(args) {
		if !strings.HasPrefix(field, "-") {
			return field
		}
	}
	return ""
}

func (s *Session) cmdList(ctx context.Context, args string, long bool) {
	p := s.generatePath(pathArgument(args))
	fs := s.filesystem()
	kind, err := fs.Type(ctx, p)
	if err != nil || kind == vfs.KindMissing {
		s.reply(replyErrNoDirFile, p)
		return
	}

	var entries []vfs.Info
	if kind == vfs.KindDir {
		entries, err = fs.List(ctx, p)
	} else {
		var info vfs.Info
		info, err = fs.Info(ctx, p)
		entries = []vfs.Info{info}
	}
	if err != nil {
		s.reply(replyErrNoList, err.Error())
		return
	}

	now := time.Now()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if long {
			lines = append(lines, lsLongify(now, e))
		} else {
			lines = append(lines, e.Name)
		}
	}
	payload := strings.Join(lines, "\r\n") + "\r\n"

	s.reply(replyOpenDataConn, typeMap[s.transferMode])
	conn, err := s.openDataConn(s.srv.Adj, s.srv.Port)
	if err != nil {
		s.reply(replyNoDataConn)
		return
	}
	_, werr := conn.Write([]byte(payload))
	conn.Close()
	if werr != nil {
		logx.Errorf(logx.S("ftpserver"), "list transfer: %v", werr)
		return
	}
	s.reply(replyTransSuccess)
}

func (s *Session) cmdRetr(ctx context.Context, args string) {
	if args == "" {
		s.reply(replyCmdUnknown, "RETR")
		return
	}
	p := s.generatePath(args)
	fs := s.filesystem()
	kind, err := fs.Type(ctx, p)
	if err != nil || kind != vfs.KindFile {
		s.reply(replyErrIsNotFile, p)
		return
	}

	start := s.restartPosition
	s.restartPosition = 0

	r, err := fs.OpenRead(ctx, p, start)
	if err != nil {
		s.reply(replyErrOpenRead, err.Error())
		return
	}
	defer r.Close()

	s.reply(replyOpenConn, typeMap[s.transferMode], p)
	conn, err := s.openDataConn(s.srv.Adj, s.srv.Port)
	if err != nil {
		s.reply(replyNoDataConn)
		return
	}
	defer conn.Close()

	if _, err := io.Copy(conn, r); err != nil {
		s.reply(replyErrIO, err.Error())
		return
	}
	s.reply(replyTransSuccess)
}

func (s *Session) cmdStor(ctx context.Context, args string, appendMode bool) {
	if args == "" {
		s.reply(replyErrArgs)
		return
	}
	p := s.generatePath(args)
	fs := s.filesystem()

	// restart_position is consumed once per REST/STOR pair regardless of
	// whether this backend can honor a non-zero write offset (see
	// DESIGN.md's STOR restart bookkeeping note).
	s.restartPosition = 0

	w, err := fs.OpenWrite(ctx, p, appendMode)
	if err != nil {
		s.reply(replyErrOpenWrite, err.Error())
		return
	}

	s.reply(replyOpenConn, typeMap[s.transferMode], p)
	conn, err := s.openDataConn(s.srv.Adj, s.srv.Port)
	if err != nil {
		w.Close()
		s.reply(replyNoDataConn)
		return
	}
	defer conn.Close()

	_, copyErr := io.Copy(w, conn)
	closeErr := w.Close()
	switch {
	case copyErr != nil:
		s.reply(replyErrIO, copyErr.Error())
	case closeErr != nil:
		s.reply(replyErrOpenWrite, closeErr.Error())
	default:
		s.reply(replyTransSuccess)
	}
}
