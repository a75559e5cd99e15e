// Package testbed runs an in-process Redis look-alike for tests. It
// implements just enough of the command surface to exercise a client:
// strings, handshake, transactions with WATCH, pub/sub in both protocol
// versions, SCAN and DEBUG SLEEP. State is per-server and dies with it,
// so tests need no external redis-server binary.
package testbed

import (
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/redissimple"
	"github.com/redmux/redmux/resp"
)

// Server is one in-process server instance. The zero value is usable:
// Start picks a free loopback port and remembers it, so Stop/Start cycles
// come back on the same address.
type Server struct {
	// Port to listen on. Zero picks a free one on the first Start.
	Port int
	// RejectHello makes HELLO fail like a pre-RESP3 server would.
	RejectHello bool

	mu       sync.Mutex
	l        net.Listener
	dbs      map[int]map[string]string
	vers     map[int]map[string]uint64
	clients  map[*client]struct{}
	password string
	paused   chan struct{}
}

// Start begins listening. Idempotent: a running server is left alone.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l != nil {
		return
	}
	if s.dbs == nil {
		s.dbs = make(map[int]map[string]string)
		s.vers = make(map[int]map[string]uint64)
		s.clients = make(map[*client]struct{})
	}
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(s.Port))
	if err != nil {
		panic(err)
	}
	s.Port = l.Addr().(*net.TCPAddr).Port
	s.l = l
	go s.acceptLoop(l)
}

// Stop closes the listener and every client socket. Data survives for the
// next Start.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l == nil {
		return
	}
	s.l.Close()
	s.l = nil
	for cl := range s.clients {
		cl.c.Close()
	}
}

// Pause makes the server accept traffic but answer nothing until Resume,
// the way a stalled server looks to a client.
func (s *Server) Pause() {
	s.mu.Lock()
	if s.paused == nil {
		s.paused = make(chan struct{})
	}
	s.mu.Unlock()
}

// Resume undoes Pause.
func (s *Server) Resume() {
	s.mu.Lock()
	if s.paused != nil {
		close(s.paused)
		s.paused = nil
	}
	s.mu.Unlock()
}

// Addr returns the address to connect to.
func (s *Server) Addr() string {
	return "127.0.0.1:" + strconv.Itoa(s.Port)
}

// RequirePass makes the server demand AUTH with the given password.
func (s *Server) RequirePass(password string) {
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// DropConnections closes every client socket but keeps listening, which
// is how tests provoke a reconnect.
func (s *Server) DropConnections() {
	s.mu.Lock()
	for cl := range s.clients {
		cl.c.Close()
	}
	s.mu.Unlock()
}

func (s *Server) acceptLoop(l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			return
		}
		cl := &client{
			srv:   s,
			c:     c,
			watch: make(map[string]uint64),
			subs:  make(map[string]struct{}),
			psubs: make(map[string]struct{}),
			ssubs: make(map[string]struct{}),
		}
		s.mu.Lock()
		if s.l != l {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.clients[cl] = struct{}{}
		s.mu.Unlock()
		go cl.serve()
	}
}

func (s *Server) db(n int) map[string]string {
	d := s.dbs[n]
	if d == nil {
		d = make(map[string]string)
		s.dbs[n] = d
	}
	return d
}

func (s *Server) bump(db int, key string) {
	v := s.vers[db]
	if v == nil {
		v = make(map[string]uint64)
		s.vers[db] = v
	}
	v[key]++
}

func (s *Server) version(db int, key string) uint64 {
	return s.vers[db][key]
}

type client struct {
	srv *Server
	c   net.Conn
	wmu sync.Mutex

	resp3  bool
	authed bool
	db     int

	inMulti bool
	dirty   bool
	queued  [][]string
	watch   map[string]uint64

	subs  map[string]struct{}
	psubs map[string]struct{}
	ssubs map[string]struct{}
}

func (cl *client) serve() {
	defer func() {
		cl.srv.mu.Lock()
		delete(cl.srv.clients, cl)
		cl.srv.mu.Unlock()
		cl.c.Close()
	}()
	r := newRequestReader(cl.c)
	for {
		args, err := r.next()
		if err != nil {
			return
		}
		cl.dispatch(args)
	}
}

func (cl *client) write(v interface{}) {
	var buf []byte
	if cl.resp3 {
		buf = resp.AppendReply(nil, v)
	} else {
		buf = resp.AppendReply2(nil, v)
	}
	cl.wmu.Lock()
	cl.c.Write(buf)
	cl.wmu.Unlock()
}

func errReply(text string) interface{} {
	return redis.ServerError(text)
}

func (cl *client) subscribed() bool {
	return len(cl.subs)+len(cl.psubs)+len(cl.ssubs) > 0
}

func (cl *client) subCount() int64 {
	return int64(len(cl.subs) + len(cl.psubs) + len(cl.ssubs))
}

func (cl *client) dispatch(args []string) {
	if len(args) == 0 {
		cl.write(errReply("ERR empty command"))
		return
	}
	cmd := strings.ToUpper(args[0])
	args = args[1:]

	s := cl.srv
	s.mu.Lock()
	needAuth := s.password != "" && !cl.authed
	paused := s.paused
	s.mu.Unlock()
	if paused != nil {
		<-paused
	}
	if needAuth && cmd != "AUTH" && cmd != "HELLO" && cmd != "QUIT" {
		cl.write(errReply("NOAUTH Authentication required."))
		return
	}

	if cl.inMulti {
		switch cmd {
		case "EXEC":
			cl.exec()
			return
		case "DISCARD":
			cl.inMulti = false
			cl.dirty = false
			cl.queued = nil
			cl.write("OK")
			return
		case "MULTI":
			cl.write(errReply("ERR MULTI calls can not be nested"))
			return
		case "WATCH":
			cl.write(errReply("ERR WATCH inside MULTI is not allowed"))
			return
		default:
			if !knownCommand(cmd) {
				cl.dirty = true
				cl.write(errReply("ERR unknown command '" + cmd + "'"))
				return
			}
			if isSubCommand(cmd) {
				cl.dirty = true
				cl.write(errReply("ERR " + cmd + " is not allowed in transactions"))
				return
			}
			cl.queued = append(cl.queued, append([]string{cmd}, args...))
			cl.write("QUEUED")
			return
		}
	}

	res := cl.run(cmd, args)
	if _, skip := res.(noReply); !skip {
		cl.write(res)
	}
}

func isSubCommand(cmd string) bool {
	switch cmd {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE",
		"SSUBSCRIBE", "SUNSUBSCRIBE":
		return true
	}
	return false
}

func knownCommand(cmd string) bool {
	switch cmd {
	case "PING", "ECHO", "AUTH", "HELLO", "SELECT", "QUIT",
		"GET", "SET", "DEL", "EXISTS", "INCR", "FLUSHDB",
		"MULTI", "EXEC", "DISCARD", "WATCH", "UNWATCH",
		"SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE",
		"SSUBSCRIBE", "SUNSUBSCRIBE", "PUBLISH", "SPUBLISH",
		"SCAN", "DEBUG":
		return true
	}
	return false
}

// run executes a single non-transactional command and returns the reply value.
func (cl *client) run(cmd string, args []string) interface{} {
	s := cl.srv
	switch cmd {
	case "PING":
		msg := ""
		if len(args) > 0 {
			msg = args[0]
		}
		if cl.subscribed() && !cl.resp3 {
			return []interface{}{[]byte("pong"), []byte(msg)}
		}
		if msg != "" {
			return []byte(msg)
		}
		return "PONG"

	case "ECHO":
		if len(args) != 1 {
			return errReply("ERR wrong number of arguments for 'echo' command")
		}
		return []byte(args[0])

	case "AUTH":
		password := ""
		switch len(args) {
		case 1:
			password = args[0]
		case 2:
			password = args[1]
		default:
			return errReply("ERR wrong number of arguments for 'auth' command")
		}
		s.mu.Lock()
		ok := s.password != "" && password == s.password
		s.mu.Unlock()
		if !ok {
			return errReply("WRONGPASS invalid username-password pair or user is disabled.")
		}
		cl.authed = true
		return "OK"

	case "HELLO":
		return cl.hello(args)

	case "SELECT":
		n, err := strconv.Atoi(argOr(args, 0))
		if err != nil || n < 0 {
			return errReply("ERR DB index is out of range")
		}
		cl.db = n
		return "OK"

	case "QUIT":
		cl.c.Close()
		return "OK"

	case "GET":
		if len(args) != 1 {
			return errReply("ERR wrong number of arguments for 'get' command")
		}
		s.mu.Lock()
		v, ok := s.db(cl.db)[args[0]]
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return []byte(v)

	case "SET":
		if len(args) < 2 {
			return errReply("ERR wrong number of arguments for 'set' command")
		}
		s.mu.Lock()
		s.db(cl.db)[args[0]] = args[1]
		s.bump(cl.db, args[0])
		s.mu.Unlock()
		return "OK"

	case "DEL":
		var n int64
		s.mu.Lock()
		d := s.db(cl.db)
		for _, k := range args {
			if _, ok := d[k]; ok {
				delete(d, k)
				s.bump(cl.db, k)
				n++
			}
		}
		s.mu.Unlock()
		return n

	case "EXISTS":
		var n int64
		s.mu.Lock()
		d := s.db(cl.db)
		for _, k := range args {
			if _, ok := d[k]; ok {
				n++
			}
		}
		s.mu.Unlock()
		return n

	case "INCR":
		if len(args) != 1 {
			return errReply("ERR wrong number of arguments for 'incr' command")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		d := s.db(cl.db)
		cur := int64(0)
		if v, ok := d[args[0]]; ok {
			var err error
			cur, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errReply("ERR value is not an integer or out of range")
			}
		}
		cur++
		d[args[0]] = strconv.FormatInt(cur, 10)
		s.bump(cl.db, args[0])
		return cur

	case "FLUSHDB":
		s.mu.Lock()
		for k := range s.db(cl.db) {
			delete(s.db(cl.db), k)
			s.bump(cl.db, k)
		}
		s.mu.Unlock()
		return "OK"

	case "MULTI":
		cl.inMulti = true
		cl.dirty = false
		cl.queued = nil
		return "OK"

	case "EXEC":
		return errReply("ERR EXEC without MULTI")

	case "DISCARD":
		return errReply("ERR DISCARD without MULTI")

	case "WATCH":
		s.mu.Lock()
		for _, k := range args {
			cl.watch[k] = s.version(cl.db, k)
		}
		s.mu.Unlock()
		return "OK"

	case "UNWATCH":
		cl.watch = make(map[string]uint64)
		return "OK"

	case "SUBSCRIBE":
		return cl.subscribe(cl.subs, "subscribe", args)
	case "PSUBSCRIBE":
		return cl.subscribe(cl.psubs, "psubscribe", args)
	case "SSUBSCRIBE":
		return cl.subscribe(cl.ssubs, "ssubscribe", args)
	case "UNSUBSCRIBE":
		return cl.unsubscribe(cl.subs, "unsubscribe", args)
	case "PUNSUBSCRIBE":
		return cl.unsubscribe(cl.psubs, "punsubscribe", args)
	case "SUNSUBSCRIBE":
		return cl.unsubscribe(cl.ssubs, "sunsubscribe", args)

	case "PUBLISH":
		if len(args) != 2 {
			return errReply("ERR wrong number of arguments for 'publish' command")
		}
		return s.publish(args[0], args[1], false)
	case "SPUBLISH":
		if len(args) != 2 {
			return errReply("ERR wrong number of arguments for 'spublish' command")
		}
		return s.publish(args[0], args[1], true)

	case "SCAN":
		return cl.scan(args)

	case "DEBUG":
		if len(args) == 2 && strings.ToUpper(args[0]) == "SLEEP" {
			sec, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return errReply("ERR invalid debug sleep time")
			}
			time.Sleep(time.Duration(sec * float64(time.Second)))
			return "OK"
		}
		return errReply("ERR unsupported DEBUG subcommand")
	}
	return errReply("ERR unknown command '" + strings.ToLower(cmd) + "'")
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (cl *client) hello(args []string) interface{} {
	if cl.srv.RejectHello {
		return errReply("ERR unknown command 'HELLO'")
	}
	proto := int64(2)
	if cl.resp3 {
		proto = 3
	}
	for i := 0; i < len(args); {
		switch strings.ToUpper(args[i]) {
		case "2":
			proto = 2
			i++
		case "3":
			proto = 3
			i++
		case "AUTH":
			if i+3 > len(args) {
				return errReply("ERR syntax error in HELLO")
			}
			if res := cl.run("AUTH", args[i+1:i+3]); redis.AsError(res) != nil {
				return res
			}
			i += 3
		default:
			return errReply("NOPROTO unsupported protocol version")
		}
	}
	cl.resp3 = proto == 3
	return map[string]interface{}{
		"server":  []byte("redmux-testbed"),
		"version": []byte("7.0.0"),
		"proto":   proto,
		"mode":    []byte("standalone"),
	}
}

func (cl *client) exec() {
	cl.inMulti = false
	queued := cl.queued
	cl.queued = nil
	watch := cl.watch
	cl.watch = make(map[string]uint64)

	if cl.dirty {
		cl.dirty = false
		cl.write(errReply("EXECABORT Transaction discarded because of previous errors."))
		return
	}

	s := cl.srv
	s.mu.Lock()
	for k, ver := range watch {
		if s.version(cl.db, k) != ver {
			s.mu.Unlock()
			cl.write(nil)
			return
		}
	}
	s.mu.Unlock()

	results := make([]interface{}, len(queued))
	for i, q := range queued {
		results[i] = cl.run(q[0], q[1:])
	}
	cl.write(results)
}

func (cl *client) subscribe(set map[string]struct{}, kind string, names []string) interface{} {
	if len(names) == 0 {
		return errReply("ERR wrong number of arguments for '" + kind + "' command")
	}
	cl.srv.mu.Lock()
	for _, name := range names {
		set[name] = struct{}{}
		cl.writeAck(kind, name)
	}
	cl.srv.mu.Unlock()
	return noReply{}
}

func (cl *client) unsubscribe(set map[string]struct{}, kind string, names []string) interface{} {
	cl.srv.mu.Lock()
	if len(names) == 0 {
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		cl.writeAckNil(kind)
	}
	for _, name := range names {
		delete(set, name)
		cl.writeAck(kind, name)
	}
	cl.srv.mu.Unlock()
	return noReply{}
}

// noReply marks commands that already wrote their own frames.
type noReply struct{}

func (cl *client) writeAck(kind, name string) {
	cl.write(resp.Push{[]byte(kind), []byte(name), cl.subCount()})
}

func (cl *client) writeAckNil(kind string) {
	cl.write(resp.Push{[]byte(kind), nil, cl.subCount()})
}

func (s *Server) publish(channel, payload string, shard bool) int64 {
	var n int64
	s.mu.Lock()
	for cl := range s.clients {
		if shard {
			if _, ok := cl.ssubs[channel]; ok {
				cl.write(resp.Push{[]byte("smessage"), []byte(channel), []byte(payload)})
				n++
			}
			continue
		}
		if _, ok := cl.subs[channel]; ok {
			cl.write(resp.Push{[]byte("message"), []byte(channel), []byte(payload)})
			n++
		}
		for pat := range cl.psubs {
			if ok, _ := path.Match(pat, channel); ok {
				cl.write(resp.Push{[]byte("pmessage"), []byte(pat), []byte(channel), []byte(payload)})
				n++
			}
		}
	}
	s.mu.Unlock()
	return n
}

func (cl *client) scan(args []string) interface{} {
	if len(args) == 0 {
		return errReply("ERR wrong number of arguments for 'scan' command")
	}
	cursor, err := strconv.Atoi(args[0])
	if err != nil || cursor < 0 {
		return errReply("ERR invalid cursor")
	}
	match := "*"
	count := 10
	for i := 1; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return errReply("ERR syntax error")
		}
		switch strings.ToUpper(args[i]) {
		case "MATCH":
			match = args[i+1]
		case "COUNT":
			count, err = strconv.Atoi(args[i+1])
			if err != nil || count <= 0 {
				return errReply("ERR value is not an integer or out of range")
			}
		default:
			return errReply("ERR syntax error")
		}
	}

	s := cl.srv
	s.mu.Lock()
	keys := make([]string, 0, len(s.db(cl.db)))
	for k := range s.db(cl.db) {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)

	if cursor >= len(keys) {
		return []interface{}{[]byte("0"), []interface{}{}}
	}
	end := cursor + count
	if end > len(keys) {
		end = len(keys)
	}
	batch := []interface{}{}
	for _, k := range keys[cursor:end] {
		if ok, _ := path.Match(match, k); ok {
			batch = append(batch, []byte(k))
		}
	}
	next := "0"
	if end < len(keys) {
		next = strconv.Itoa(end)
	}
	return []interface{}{[]byte(next), batch}
}

// DoSure runs one command through a throwaway client connection and
// panics on hard errors. Tests use it to seed and inspect state out of
// band.
func (s *Server) DoSure(cmd string, args ...interface{}) interface{} {
	s.mu.Lock()
	c := redissimple.Conn{Addr: s.Addr(), Password: s.password}
	s.mu.Unlock()
	defer c.Close()
	res := c.Do(cmd, args...)
	if rerr := redis.AsErrorx(res); redis.HardError(rerr) {
		panic(rerr)
	}
	return res
}
