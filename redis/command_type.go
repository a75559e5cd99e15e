package redis

import "strings"

// Commands that suspend the server connection until data arrives. On a
// multiplexed connection they would stall every other caller, therefore
// they are rejected unless Opts.ScriptMode is set.
var blockingCmds = map[string]struct{}{
	"BLPOP":      {},
	"BRPOP":      {},
	"BRPOPLPUSH": {},
	"BLMOVE":     {},
	"BLMPOP":     {},
	"BZPOPMIN":   {},
	"BZPOPMAX":   {},
	"BZMPOP":     {},
	"XREAD":      {},
	"XREADGROUP": {},
	"WAIT":       {},
	"SAVE":       {},
}

// Commands that change the connection mode or depend on connection-scoped
// state shared with other callers. They must go through the dedicated
// subscription/transaction entry points, never through plain Send.
var dangerousCmds = map[string]struct{}{
	"WATCH":        {},
	"UNWATCH":      {},
	"MULTI":        {},
	"EXEC":         {},
	"DISCARD":      {},
	"SUBSCRIBE":    {},
	"UNSUBSCRIBE":  {},
	"PSUBSCRIBE":   {},
	"PUNSUBSCRIBE": {},
	"SSUBSCRIBE":   {},
	"SUNSUBSCRIBE": {},
}

var replicaSafeCmds = map[string]struct{}{}

func init() {
	for _, cmd := range strings.Split(
		"PING ECHO DUMP MEMORY EXISTS GET GETRANGE RANDOMKEY KEYS TYPE TTL PTTL "+
			"BITCOUNT BITPOS GETBIT "+
			"GEOHASH GEOPOS GEODIST GEORADIUS_RO GEORADIUSBYMEMBER_RO "+
			"HEXISTS HGET HGETALL HKEYS HLEN HMGET HSTRLEN HVALS "+
			"LINDEX LLEN LRANGE "+
			"PFCOUNT "+
			"SCARD SDIFF SINTER SISMEMBER SMEMBERS SRANDMEMBER STRLEN SUNION "+
			"ZCARD ZCOUNT ZLEXCOUNT ZRANGE ZRANGEBYLEX ZREVRANGEBYLEX "+
			"ZRANGEBYSCORE ZRANK ZREVRANGE ZREVRANGEBYSCORE ZREVRANK ZSCORE "+
			"XPENDING XREVRANGE XREAD XLEN", " ") {
		replicaSafeCmds[cmd] = struct{}{}
	}
}

func upper(cmd string) string {
	for i := 0; i < len(cmd); i++ {
		if cmd[i] >= 'a' && cmd[i] <= 'z' {
			return strings.ToUpper(cmd)
		}
	}
	return cmd
}

// Blocking reports whether the command blocks the server connection.
func Blocking(cmd string) bool {
	_, ok := blockingCmds[upper(cmd)]
	return ok
}

// Dangerous reports whether the command changes the connection mode and is
// therefore forbidden on the generic submission path.
func Dangerous(cmd string) bool {
	_, ok := dangerousCmds[upper(cmd)]
	return ok
}

// ReplicaSafe reports whether the command is read-only and may be served by
// a replica.
func ReplicaSafe(cmd string) bool {
	_, ok := replicaSafeCmds[upper(cmd)]
	return ok
}

// Forbidden reports whether the request may not travel through plain Send
// on a multiplexed connection. scriptMode lifts the restriction for users
// who guarantee single-goroutine usage.
func Forbidden(cmd string, scriptMode bool) bool {
	if scriptMode {
		return false
	}
	return Blocking(cmd) || Dangerous(cmd)
}
