package irc

// Numeric replies used by the server.
const (
	RplWelcome          = "001"
	RplYourHost         = "002"
	RplCreated          = "003"
	RplMyInfo           = "004"
	RplUModeIs          = "221"
	RplLUserClient      = "251"
	RplISON             = "303"
	RplWhoisUser        = "311"
	RplWhoisServer      = "312"
	RplEndOfWho         = "315"
	RplEndOfWhois       = "318"
	RplWhoisChannels    = "319"
	RplList             = "322"
	RplListEnd          = "323"
	RplChannelModeIs    = "324"
	RplNoTopic          = "331"
	RplTopic            = "332"
	RplWhoReply         = "352"
	RplNamReply         = "353"
	RplEndOfNames       = "366"
	RplMOTD             = "372"
	RplMOTDStart        = "375"
	RplEndOfMOTD        = "376"
	ErrNoSuchNick       = "401"
	ErrNoSuchChannel    = "403"
	ErrNoOrigin         = "409"
	ErrNoRecipient      = "411"
	ErrNoTextToSend     = "412"
	ErrUnknownCommand   = "421"
	ErrNoMOTD           = "422"
	ErrNoNicknameGiven  = "431"
	ErrErroneusNickname = "432"
	ErrNicknameInUse    = "433"
	ErrNotOnChannel     = "442"
	ErrNeedMoreParams   = "461"
	ErrPasswdMismatch   = "464"
	ErrUnknownMode      = "472"
	ErrBadChannelKey    = "475"
	ErrUModeUnknownFlag = "501"
)
