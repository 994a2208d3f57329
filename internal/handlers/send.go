package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/invoicerhq/invoicer/internal/httpx"
	"github.com/invoicerhq/invoicer/internal/mail"
)

// SendHandler is the raw delivery gateway: it emails an already-rendered
// document supplied by the caller, without touching any stored invoice. The
// richer per-invoice send endpoint lives on InvoiceHandler.
type SendHandler struct {
	sender mail.Sender
	log    *zap.Logger
}

func NewSendHandler(sender mail.Sender, log *zap.Logger) *SendHandler {
	return &SendHandler{sender: sender, log: log}
}

type rawSendRequest struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Message       string `json:"message"`
	PDFBase64     string `json:"pdfBase64"`
	InvoiceNumber string `json:"invoiceNumber"`
	Filename      string `json:"filename"`
}

// attachmentName picks the attachment filename: an explicit filename wins,
// then "Invoice-<number>.pdf" from the invoice number, then a fixed fallback.
func (req *rawSendRequest) attachmentName() string {
	if req.Filename != "" {
		return req.Filename
	}
	if req.InvoiceNumber != "" {
		return "Invoice-" + req.InvoiceNumber + ".pdf"
	}
	return "invoice.pdf"
}

func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req rawSendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.To == "" || req.PDFBase64 == "" {
		httpx.Error(w, http.StatusBadRequest, "Missing fields", nil)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid document encoding", nil)
		return
	}
	msg := mail.Message{
		To:      req.To,
		Subject: req.Subject,
		HTML:    strings.ReplaceAll(req.Message, "\n", "<br />"),
		Attachments: []mail.Attachment{
			{Filename: req.attachmentName(), Content: data},
		},
	}
	if err := h.sender.Send(r.Context(), msg); err != nil {
		h.log.Error("raw send failed", zap.String("to", req.To), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to send email", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
