package services

import (
	"context"
	"io"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/storage"
	"github.com/cppla/aiboard/utils"
)

const (
	MsgSaved          = "article saved"
	MsgUpdated        = "article updated"
	MsgDeleted        = "article deleted"
	MsgUpdateRejected = "update rejected - check password"
	MsgDeleteRejected = "not deleted - check password"
)

// Upload is one submitted file. Open returns a fresh reader on every call;
// it is called again when the chosen name is claimed by a concurrent upload.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// WriteInput is a validated create request.
type WriteInput struct {
	Title    string
	Name     string
	Content  string
	Password string
	Files    []Upload
}

// EditInput is a validated edit request. PreviousFileName/Size are the
// attachment the form was loaded with, kept unless a new file is uploaded.
type EditInput struct {
	ID               uint
	Title            string
	Name             string
	Content          string
	Password         string
	Files            []Upload
	PreviousFileName string
	PreviousFileSize int64
}

type attachment struct {
	name string
	size int64
}

func encodeTitle(title string) string {
	return utils.EncodeHTML(title)
}

func decodeTitle(title string) string {
	return utils.DecodeHTML(title)
}

// Write stores the uploads, then creates the article.
func (s *BoardService) Write(ctx context.Context, in WriteInput) (*Outcome, error) {
	att, written, err := s.storeUploads(ctx, in.Files)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, &models.Article{
		Title:    encodeTitle(in.Title),
		Name:     in.Name,
		Content:  in.Content,
		Password: in.Password,
		FileName: att.name,
		FileSize: att.size,
	})
	if err != nil {
		s.discard(ctx, written)
		return nil, err
	}

	s.logger.Info("article created",
		zap.Uint("id", created.ID),
		zap.String("file_name", created.FileName),
		zap.Int64("file_size", created.FileSize))
	return &Outcome{Success: true, Redirect: ListPath, Message: MsgSaved, ArticleID: created.ID}, nil
}

// Edit replaces the article's fields when the password matches.
// A mismatch is not an error: it returns an unsuccessful Outcome with the submitted form.
func (s *BoardService) Edit(ctx context.Context, in EditInput) (*Outcome, error) {
	att := attachment{name: in.PreviousFileName, size: in.PreviousFileSize}
	if att.name == "" {
		att.size = 0
	}

	uploaded, written, err := s.storeUploads(ctx, in.Files)
	if err != nil {
		return nil, err
	}
	if len(written) > 0 {
		att = uploaded
	}

	n, err := s.store.Update(ctx, &models.Article{
		ID:       in.ID,
		Title:    encodeTitle(in.Title),
		Name:     in.Name,
		Content:  in.Content,
		Password: in.Password,
		FileName: att.name,
		FileSize: att.size,
	})
	if err != nil {
		s.discard(ctx, written)
		return nil, err
	}
	if n == 0 {
		s.discard(ctx, written)
		if _, err := s.store.GetByID(ctx, in.ID); err != nil {
			return nil, err
		}
		s.logger.Info("article update rejected", zap.Uint("id", in.ID))
		return &Outcome{
			Message:   MsgUpdateRejected,
			ArticleID: in.ID,
			Form: &EditForm{
				ID:               in.ID,
				Title:            in.Title,
				Name:             in.Name,
				Content:          in.Content,
				PreviousFileName: in.PreviousFileName,
				PreviousFileSize: in.PreviousFileSize,
			},
		}, nil
	}

	s.logger.Info("article updated", zap.Uint("id", in.ID), zap.String("file_name", att.name))
	return &Outcome{Success: true, Redirect: DetailPath(in.ID), Message: MsgUpdated, ArticleID: in.ID}, nil
}

// Delete removes the article when the password matches and always sends the client back to the listing.
func (s *BoardService) Delete(ctx context.Context, id uint, password string) (*Outcome, error) {
	var fileName string
	if s.index != nil {
		article, err := s.store.GetByID(ctx, id)
		switch {
		case err == nil:
			fileName = article.FileName
		case !isNotFound(err):
			return nil, err
		}
	}

	n, err := s.store.Delete(ctx, id, password)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		s.logger.Info("article delete rejected", zap.Uint("id", id))
		return &Outcome{Message: MsgDeleteRejected, ArticleID: id, Form: s.DeleteForm(id)}, nil
	}

	if fileName != "" {
		s.removeIfUnreferenced(ctx, fileName)
	}
	s.logger.Info("article deleted", zap.Uint("id", id))
	return &Outcome{Success: true, Redirect: ListPath, Message: MsgDeleted, ArticleID: id}, nil
}

// storeUploads writes every non-empty upload and returns the last one as the attachment.
// On failure the files already written by this call are removed.
func (s *BoardService) storeUploads(ctx context.Context, files []Upload) (attachment, []string, error) {
	var (
		att     attachment
		written []string
	)
	for _, f := range files {
		if f.Size <= 0 || f.Open == nil {
			continue
		}
		saved, err := s.storeUpload(ctx, f)
		if err != nil {
			s.discard(ctx, written)
			return attachment{}, nil, err
		}
		if saved.name == "" {
			continue
		}
		written = append(written, saved.name)
		att = saved
	}
	return att, written, nil
}

// maxNameAttempts bounds how often an upload is retried when a concurrent
// request claims the chosen name first.
const maxNameAttempts = 5

func (s *BoardService) storeUpload(ctx context.Context, f Upload) (attachment, error) {
	var lastErr error
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		att, err := s.saveUpload(ctx, f)
		if !errors.Is(err, storage.ErrNameTaken) {
			return att, err
		}
		s.logger.Debug("attachment name taken, retrying", zap.String("file_name", f.Filename), zap.Error(err))
		lastErr = err
	}
	return attachment{}, &UploadError{Name: f.Filename, Err: lastErr}
}

// saveUpload picks a free name and writes f under it. It returns
// storage.ErrNameTaken unwrapped when the name was claimed in between.
func (s *BoardService) saveUpload(ctx context.Context, f Upload) (attachment, error) {
	name, err := storage.NextAvailableName(ctx, s.files, f.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidFileName) {
			return attachment{}, err
		}
		return attachment{}, &UploadError{Name: f.Filename, Err: err}
	}

	src, err := f.Open()
	if err != nil {
		return attachment{}, &UploadError{Name: name, Err: err}
	}
	defer src.Close()

	var r io.Reader = src
	if s.maxUploadBytes > 0 {
		r = io.LimitReader(src, s.maxUploadBytes+1)
	}
	n, err := s.files.Save(ctx, name, r)
	if err != nil {
		if errors.Is(err, storage.ErrNameTaken) {
			return attachment{}, err
		}
		return attachment{}, &UploadError{Name: name, Err: err}
	}
	if s.maxUploadBytes > 0 && n > s.maxUploadBytes {
		s.discard(ctx, []string{name})
		return attachment{}, &UploadError{Name: name, Err: ErrUploadTooLarge}
	}
	if n == 0 {
		// the header claimed content but the body was empty
		s.discard(ctx, []string{name})
		return attachment{}, nil
	}
	return attachment{name: name, size: n}, nil
}

// discard removes files written for a request that did not persist.
func (s *BoardService) discard(ctx context.Context, names []string) {
	for _, name := range names {
		if err := s.files.Remove(context.WithoutCancel(ctx), name); err != nil {
			s.logger.Warn("remove unreferenced attachment", zap.String("file_name", name), zap.Error(err))
		}
	}
}

func (s *BoardService) removeIfUnreferenced(ctx context.Context, name string) {
	inUse, err := s.index.AttachmentInUse(ctx, name)
	if err != nil {
		s.logger.Warn("check attachment references", zap.String("file_name", name), zap.Error(err))
		return
	}
	if !inUse {
		s.discard(ctx, []string{name})
	}
}
