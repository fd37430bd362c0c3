package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sunshineplan/imgconv"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
)

// Send composes and delivers one outbound message. The destination is
// mapped onto a typed JID by ComposeJID, so both qualified addresses and
// bare identifiers are accepted.
func (t *transport) Send(ctx context.Context, to string, msg session.Message) error {
	if !t.client.IsConnected() || !t.client.IsLoggedIn() {
		return errClientNotReady
	}

	remoteJID := ComposeJID(to)

	content, err := t.buildMessage(ctx, msg)
	if err != nil {
		return err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: t.client.GenerateMessageID()}
	if _, err := t.client.SendMessage(ctx, remoteJID, content, msgExtra); err != nil {
		return err
	}
	return nil
}

func (t *transport) buildMessage(ctx context.Context, msg session.Message) (*waE2E.Message, error) {
	switch msg.Kind {
	case session.KindText:
		return &waE2E.Message{
			Conversation: proto.String(msg.Text),
		}, nil

	case session.KindImage:
		return t.buildImageMessage(ctx, msg)

	case session.KindVideo:
		uploaded, err := t.client.Upload(ctx, msg.Media, whatsmeow.MediaVideo)
		if err != nil {
			return nil, errors.New("error while uploading video to whatsapp server")
		}
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(msg.MimeType),
				Caption:       proto.String(msg.Text),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}, nil

	case session.KindAudio:
		uploaded, err := t.client.Upload(ctx, msg.Media, whatsmeow.MediaAudio)
		if err != nil {
			return nil, errors.New("error while uploading audio to whatsapp server")
		}
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(msg.MimeType),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}, nil

	case session.KindDocument:
		uploaded, err := t.client.Upload(ctx, msg.Media, whatsmeow.MediaDocument)
		if err != nil {
			return nil, errors.New("error while uploading document to whatsapp server")
		}
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(msg.MimeType),
				FileName:      proto.String(msg.FileName),
				Caption:       proto.String(msg.Text),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported message kind %q", msg.Kind)
	}
}

func (t *transport) buildImageMessage(ctx context.Context, msg session.Message) (*waE2E.Message, error) {
	imageBytes := msg.Media
	imageType := msg.MimeType

	convertWebP, err := env.GetEnvBool("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP")
	if err != nil {
		convertWebP = false
	}
	if imageType == "image/webp" && convertWebP {
		decoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return nil, errors.New("error while decoding webp image stream")
		}
		encoded := new(bytes.Buffer)
		if err := imgconv.Write(encoded, decoded, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
			return nil, errors.New("error while encoding converted image stream")
		}
		imageBytes = encoded.Bytes()
		imageType = "image/png"
	}

	compress, err := env.GetEnvBool("WHATSAPP_MEDIA_IMAGE_COMPRESSION")
	if err != nil {
		compress = false
	}
	if compress {
		decoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return nil, errors.New("error while decoding resize image stream")
		}
		encoded := new(bytes.Buffer)
		err = imgconv.Write(encoded,
			imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 1024}),
			&imgconv.FormatOption{})
		if err != nil {
			return nil, errors.New("error while encoding resize image stream")
		}
		imageBytes = encoded.Bytes()
	}

	thumbDecoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.New("error while decoding thumbnail image stream")
	}
	thumbEncoded := new(bytes.Buffer)
	err = imgconv.Write(thumbEncoded,
		imgconv.Resize(thumbDecoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, errors.New("error while encoding thumbnail image stream")
	}

	uploaded, err := t.client.Upload(ctx, imageBytes, whatsmeow.MediaImage)
	if err != nil {
		return nil, errors.New("error while uploading image to whatsapp server")
	}
	thumbUploaded, err := t.client.Upload(ctx, thumbEncoded.Bytes(), whatsmeow.MediaLinkThumbnail)
	if err != nil {
		return nil, errors.New("error while uploading image thumbnail to whatsapp server")
	}

	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:                 proto.String(uploaded.URL),
			DirectPath:          proto.String(uploaded.DirectPath),
			Mimetype:            proto.String(imageType),
			Caption:             proto.String(msg.Text),
			FileLength:          proto.Uint64(uploaded.FileLength),
			FileSHA256:          uploaded.FileSHA256,
			FileEncSHA256:       uploaded.FileEncSHA256,
			MediaKey:            uploaded.MediaKey,
			JPEGThumbnail:       thumbEncoded.Bytes(),
			ThumbnailDirectPath: &thumbUploaded.DirectPath,
			ThumbnailSHA256:     thumbUploaded.FileSHA256,
			ThumbnailEncSHA256:  thumbUploaded.FileEncSHA256,
		},
	}, nil
}
