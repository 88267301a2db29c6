package ws

// Events received from the backend.
const (
	EventReceiveMessage         = "receive_message"
	EventChatHistory            = "chat_history"
	EventRecentChats            = "recent_chats"
	EventRecentChatUpdate       = "recent_chat_update"
	EventNewMessageNotification = "new_message_notification"
	EventProductNotification    = "product_notification"
	EventBidNotificationsList   = "bid_notifications_list"
	EventNewBid                 = "new_bid"
	EventUserOnline             = "user_online"
	EventUserOffline            = "user_offline"
	EventChatRating             = "chat_rating_notification"
	EventCloseDealRequest       = "close_deal_request"
	EventCloseDealResolution    = "close_deal_resolution"
	EventChatLastMessageUpdate  = "chat_last_message_update"
	EventDealClosed             = "deal_closed"
	EventUploadSuccess          = "upload_success"
	EventUploadError            = "upload_error"
	EventRoomJoined             = "room_joined"
	EventUserJoined             = "user_joined"
	EventUserLeft               = "user_left"
	EventError                  = "error"
)

// Events emitted to the backend.
const (
	EmitIdentify                 = "identify"
	EmitJoinRoom                 = "join_room"
	EmitLeaveRoom                = "leave_room"
	EmitSendMessage              = "send_message"
	EmitGetChatHistory           = "get_chat_history"
	EmitGetRecentChats           = "get_recent_chats"
	EmitGetBidNotifications      = "get_bid_notifications"
	EmitMarkBidNotificationsRead = "mark_bid_notifications_read"
	EmitMarkAsRead               = "mark_as_read"
	EmitTypingStart              = "typing_start"
	EmitTypingStop               = "typing_stop"
	EmitUploadChatAttachment     = "upload_chat_attachment"
)
