package resp

// Reply type tag bytes, RESP2 and RESP3.
const (
	TypeSimpleString = byte('+') // +<string>\r\n
	TypeError        = byte('-') // -<message>\r\n
	TypeInteger      = byte(':') // :<number>\r\n
	TypeBulkString   = byte('$') // $<length>\r\n<bytes>\r\n
	TypeArray        = byte('*') // *<count>\r\n<elements>
	TypeNull         = byte('_') // _\r\n
	TypeDouble       = byte(',') // ,<floating point>\r\n
	TypeBoolean      = byte('#') // #t\r\n / #f\r\n
	TypeBlobError    = byte('!') // !<length>\r\n<message>\r\n
	TypeVerbatim     = byte('=') // =<length>\r\n<fmt>:<bytes>\r\n
	TypeBigNumber    = byte('(') // (<number>\r\n
	TypeMap          = byte('%') // %<pairs>\r\n<key><value>...
	TypeSet          = byte('~') // ~<count>\r\n<elements>
	TypeAttribute    = byte('|') // |<pairs>\r\n... precedes the actual reply
	TypePush         = byte('>') // ><count>\r\n<elements>
)

// Push kinds the server uses for subscription traffic.
const (
	PushMessage      = "message"
	PushPMessage     = "pmessage"
	PushSMessage     = "smessage"
	PushSubscribe    = "subscribe"
	PushUnsubscribe  = "unsubscribe"
	PushPSubscribe   = "psubscribe"
	PushPUnsubscribe = "punsubscribe"
	PushSSubscribe   = "ssubscribe"
	PushSUnsubscribe = "sunsubscribe"
)
