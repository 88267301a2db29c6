package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/session"
	"marketplace-chat/internal/ws"
)

func setupRouter(s *sessionMock, token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{ServiceName: "test", Token: token, Session: s, Requirements: &requirementMock{}})
}

func serve(router *gin.Engine, method, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(setupRouter(new(sessionMock), "secret"), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBridgeRequiresToken(t *testing.T) {
	rec := serve(setupRouter(new(sessionMock), "secret"), http.MethodGet, "/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListChatsSuccess(t *testing.T) {
	s := new(sessionMock)
	s.On("RecentChats").Return([]models.ChatSummary{{RoomID: "room-1", SellerUnreadCount: 2}}).Once()
	s.On("TotalUnread").Return(2).Once()

	rec := serve(setupRouter(s, ""), http.MethodGet, "/chats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats       []models.ChatSummary `json:"chats"`
		TotalUnread int                  `json:"totalUnread"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Chats, 1)
	assert.Equal(t, 2, resp.TotalUnread)
	s.AssertExpectations(t)
}

func TestListChatsRefreshError(t *testing.T) {
	s := new(sessionMock)
	s.On("RecentChats").Return([]models.ChatSummary{}).Once()
	s.On("LoadChats", mock.Anything).Return(nil, ws.ErrRequestTimeout).Once()

	rec := serve(setupRouter(s, ""), http.MethodGet, "/chats?refresh=true", nil)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	s.AssertExpectations(t)
}

func TestOpenChatSuccess(t *testing.T) {
	s := new(sessionMock)
	in := session.OpenInput{ProductID: "p1", BuyerID: "b1", SellerID: "seller-1"}
	s.On("OpenChat", mock.Anything, in).Return(models.ChatSummary{RoomID: "room-1"}, nil).Once()
	s.On("Messages", "room-1").Return([]models.Message{{ID: "m1", Text: "hi"}}, nil).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/open",
		bytes.NewBufferString(`{"productId":"p1","buyerId":"b1","sellerId":"seller-1"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	s.AssertExpectations(t)
}

func TestOpenChatMessagesFailure(t *testing.T) {
	s := new(sessionMock)
	s.On("OpenChat", mock.Anything, mock.Anything).Return(models.ChatSummary{RoomID: "room-1"}, nil).Once()
	s.On("Messages", "room-1").Return(nil, session.ErrUnknownRoom).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/open",
		bytes.NewBufferString(`{"productId":"p1","buyerId":"b1","sellerId":"seller-1"}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"messages"`)
	s.AssertExpectations(t)
}

func TestOpenChatSelfChatConflict(t *testing.T) {
	s := new(sessionMock)
	s.On("OpenChat", mock.Anything, mock.Anything).Return(models.ChatSummary{}, models.ErrSelfChat).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/open",
		bytes.NewBufferString(`{"productId":"p1","buyerId":"seller-1","sellerId":"seller-1"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	s.AssertExpectations(t)
}

func TestOpenChatValidation(t *testing.T) {
	rec := serve(setupRouter(new(sessionMock), ""), http.MethodPost, "/chats/open", bytes.NewBufferString(`{"productId":"p1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChatMessagesUnknownRoom(t *testing.T) {
	s := new(sessionMock)
	s.On("Messages", "nope").Return(nil, session.ErrUnknownRoom).Once()

	rec := serve(setupRouter(s, ""), http.MethodGet, "/chats/nope/messages", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostChatMessage(t *testing.T) {
	s := new(sessionMock)
	s.On("SendMessage", mock.Anything, "room-1", "hello", (*models.Attachment)(nil)).
		Return(models.Message{ID: "tmp-1", Text: "hello", IsOptimistic: true}, nil).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/room-1/messages", bytes.NewBufferString(`{"message":"hello"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.True(t, msg.IsOptimistic)
	s.AssertExpectations(t)
}

func TestPostChatMessageNoActiveChat(t *testing.T) {
	s := new(sessionMock)
	s.On("SendMessage", mock.Anything, "room-1", "hello", (*models.Attachment)(nil)).
		Return(models.Message{}, session.ErrRoomNotActive).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/room-1/messages", bytes.NewBufferString(`{"message":"hello"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostAttachment(t *testing.T) {
	s := new(sessionMock)
	s.On("Upload", mock.Anything, "room-1", mock.MatchedBy(func(u ws.Upload) bool {
		return u.FileName == "a.png" && string(u.Data) == "png-bytes"
	})).Return(models.Attachment{URL: "https://cdn/a.png", Type: models.AttachmentImage}, nil).Once()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "a.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/chats/room-1/attachments", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	setupRouter(s, "").ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	s.AssertExpectations(t)
}

func TestPostAttachmentRejectedType(t *testing.T) {
	s := new(sessionMock)
	s.On("Upload", mock.Anything, "room-1", mock.Anything).Return(models.Attachment{}, ws.ErrAttachmentType).Once()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "a.exe")
	require.NoError(t, err)
	_, _ = part.Write([]byte("MZ"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/chats/room-1/attachments", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	setupRouter(s, "").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead(t *testing.T) {
	s := new(sessionMock)
	s.On("MarkRoomRead", "room-1").Return(true, nil).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/room-1/read", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":true}`, rec.Body.String())
}

func TestPostTyping(t *testing.T) {
	s := new(sessionMock)
	s.On("SetTyping", "room-1", true).Return(nil).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/room-1/typing", bytes.NewBufferString(`{"typing":true}`))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	s.AssertExpectations(t)
}

func TestCloseChat(t *testing.T) {
	s := new(sessionMock)
	s.On("CloseChat").Return(ws.ErrNotConnected).Once()

	rec := serve(setupRouter(s, ""), http.MethodPost, "/chats/close", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
