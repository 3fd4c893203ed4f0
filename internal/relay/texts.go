package relay

// User and staff facing texts.
const (
	rulesText = `Rules in short:
• no spam, insults or 18+ content
• no usernames or links to other social networks
• be respectful, the staff are real people`

	welcomeText = "Hi! This bot connects you with our support team.\n" +
		"Just write your message and we will answer you here.\n\n" + rulesText

	unknownCommandText = "Unknown command. Just write a message, or use /help to see the rules."

	deliveredText       = "Your message has been sent to the team. Please wait for a reply."
	threadFailedText    = "Sorry, we could not open a conversation right now. Please try again later."
	forwardFailedText   = "Sorry, your message could not be delivered. Please try again later."
	bannedNoticeText    = "Your access to this bot has been restricted."
	unbannedNoticeText  = "Your access to this bot has been restored."
	staffReplyHeader    = "Reply from staff:"
	userNotFoundText    = "User not found."
	userBlockedText     = "The user has blocked the bot. The reply was not delivered."
	replyFailedText     = "Failed to deliver the reply to the user."
	useInThreadText     = "Use this command inside a user thread."
	banUsageText        = "Usage: /ban <user_id>, or /ban inside a user thread."
	unbanUsageText      = "Usage: /unban <user_id>, or /unban inside a user thread."
	threadAnnounceFmt   = "New thread for user %d."
	whoFmt              = "User ID: %d"
	bannedFmt           = "User %d has been banned."
	alreadyBannedFmt    = "User %d is already banned."
	unbannedFmt         = "User %d has been unbanned."
	notBannedFmt        = "User %d is not banned."
	closedFmt           = "Thread closed, user %d unbound."
	headerFmt           = "Message from %s\nID: %d\n%s"
	noUsernameText      = "no username"
	unknownStaffCmdText = "Unknown command. Available: /who, /ban, /unban, /close."
)
