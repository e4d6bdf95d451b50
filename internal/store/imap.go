package store

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/zeegates/minig/internal/credential"
	"github.com/zeegates/minig/internal/identity"
	"github.com/zeegates/minig/internal/model"
)

// IMAPStore implements Store over go-imap v2. Each operation dials,
// authenticates, and logs out; pooling belongs to the deployment, not
// to this boundary.
type IMAPStore struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPStore creates an IMAP-backed mail store.
func NewIMAPStore(host, port, username, password string, useTLS bool) *IMAPStore {
	return &IMAPStore{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      useTLS,
	}
}

// NewIMAPStoreFromConfig builds the store from the application
// configuration, reading the account password from the system keyring.
func NewIMAPStoreFromConfig(cfg *model.AppConfig) (*IMAPStore, error) {
	password, err := credential.Get(credential.KeyAccountPassword)
	if err != nil {
		return nil, fmt.Errorf("loading account password: %w", err)
	}
	return NewIMAPStore(cfg.IMAP.Host, cfg.IMAP.Port, cfg.Account.Username, password, cfg.IMAP.TLS), nil
}

// connect establishes a connection and authenticates. The caller is
// responsible for calling Logout on the returned client.
func (s *IMAPStore) connect(_ context.Context) (*imapclient.Client, error) {
	addr := s.host + ":" + s.port

	var client *imapclient.Client
	var err error

	if s.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authenticating %s: %w", s.username, err)
	}

	return client, nil
}

// resolveUID selects the folder and finds the UID of the message with
// the given Message-ID.
func resolveUID(client *imapclient.Client, id identity.ID) (imap.UID, error) {
	if _, err := client.Select(id.Folder, nil).Wait(); err != nil {
		return 0, fmt.Errorf("selecting %s: %w", id.Folder, err)
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: id.MessageID},
		},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("searching for %s: %w", id.MessageID, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return 0, fmt.Errorf("%s: %w", id.String(), ErrNotFound)
	}
	return uids[len(uids)-1], nil
}

// FetchRaw returns the full message at the given coordinate.
func (s *IMAPStore) FetchRaw(ctx context.Context, id identity.ID) (*RawMessage, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := resolveUID(client, id)
	if err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("%s: %w", id.String(), ErrNotFound)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %s: %w", id.String(), err)
	}

	raw := rawFromBuffer(id.Folder, buf)
	raw.Raw = buf.FindBodySection(bodySection)

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("closing fetch: %w", err)
	}
	return raw, nil
}

// ListFolder returns one page of the folder, newest first, fetching
// only flags, envelope, and the header section of each message.
func (s *IMAPStore) ListFolder(ctx context.Context, folder string, page, pageSize int) ([]*RawMessage, int, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if page < 0 {
		page = 0
	}

	client, err := s.connect(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = client.Logout().Wait() }()

	selectData, err := client.Select(folder, nil).Wait()
	if err != nil {
		return nil, 0, fmt.Errorf("selecting %s: %w", folder, err)
	}

	total := int(selectData.NumMessages)
	hi := total - page*pageSize
	lo := hi - pageSize + 1
	if lo < 1 {
		lo = 1
	}
	if hi < 1 {
		return nil, total, nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(uint32(lo), uint32(hi))

	headerSection := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{headerSection},
	}

	fetchCmd := client.Fetch(seqSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []*RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		raw := rawFromBuffer(folder, buf)
		raw.Raw = buf.FindBodySection(headerSection)
		messages = append(messages, raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, total, fmt.Errorf("fetching folder %s: %w", folder, err)
	}

	// Mailbox order is oldest first; the listing contract is newest
	// first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}

// Persist appends the raw message to the folder and returns its
// Message-ID.
func (s *IMAPStore) Persist(ctx context.Context, raw []byte, folder string) (string, error) {
	messageID, err := rawMessageID(raw)
	if err != nil {
		return "", err
	}

	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Logout().Wait() }()

	appendCmd := client.Append(folder, int64(len(raw)), nil)
	if _, err := appendCmd.Write(raw); err != nil {
		return "", fmt.Errorf("writing append data: %w", err)
	}
	if err := appendCmd.Close(); err != nil {
		return "", fmt.Errorf("closing append: %w", err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return "", fmt.Errorf("appending to %s: %w", folder, err)
	}

	return messageID, nil
}

// UpdateFlags applies the delta to the message, silently, as two STORE
// operations.
func (s *IMAPStore) UpdateFlags(ctx context.Context, id identity.ID, delta FlagDelta) error {
	if delta.isEmpty() {
		return nil
	}

	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := resolveUID(client, id)
	if err != nil {
		return err
	}
	uidSet := imap.UIDSetNum(uid)

	if add := delta.add(); len(add) > 0 {
		storeCmd := client.Store(uidSet, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  add,
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return fmt.Errorf("adding flags on %s: %w", id.String(), err)
		}
	}

	if remove := delta.remove(); len(remove) > 0 {
		storeCmd := client.Store(uidSet, &imap.StoreFlags{
			Op:     imap.StoreFlagsDel,
			Silent: true,
			Flags:  remove,
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return fmt.Errorf("removing flags on %s: %w", id.String(), err)
		}
	}

	return nil
}

// Move transfers the message to the target folder.
func (s *IMAPStore) Move(ctx context.Context, id identity.ID, targetFolder string) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := resolveUID(client, id)
	if err != nil {
		return err
	}

	if _, err := client.Move(imap.UIDSetNum(uid), targetFolder).Wait(); err != nil {
		return fmt.Errorf("moving %s to %s: %w", id.String(), targetFolder, err)
	}
	return nil
}

// Copy copies the message into the target folder.
func (s *IMAPStore) Copy(ctx context.Context, id identity.ID, targetFolder string) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := resolveUID(client, id)
	if err != nil {
		return err
	}

	if _, err := client.Copy(imap.UIDSetNum(uid), targetFolder).Wait(); err != nil {
		return fmt.Errorf("copying %s to %s: %w", id.String(), targetFolder, err)
	}
	return nil
}

// Delete removes the message permanently: flag deleted, then expunge.
func (s *IMAPStore) Delete(ctx context.Context, id identity.ID) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := resolveUID(client, id)
	if err != nil {
		return err
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging %s deleted: %w", id.String(), err)
	}

	if err := client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %s: %w", id.Folder, err)
	}
	return nil
}

// FindByMessageID searches every folder for the Message-ID.
func (s *IMAPStore) FindByMessageID(ctx context.Context, messageID string) (identity.ID, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return identity.ID{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	folders, err := client.List("", "*", nil).Collect()
	if err != nil {
		return identity.ID{}, fmt.Errorf("listing folders: %w", err)
	}

	for _, folder := range folders {
		id := identity.New(folder.Mailbox, messageID)
		if _, err := resolveUID(client, id); err == nil {
			return id, nil
		}
	}
	return identity.ID{}, fmt.Errorf("%s: %w", messageID, ErrNotFound)
}

// rawFromBuffer builds the store-level metadata from a fetch result.
func rawFromBuffer(folder string, buf *imapclient.FetchMessageBuffer) *RawMessage {
	raw := &RawMessage{
		Folder:       folder,
		UID:          buf.UID,
		Flags:        buf.Flags,
		InternalDate: buf.InternalDate,
	}
	if buf.Envelope != nil {
		raw.MessageID = bracketMessageID(buf.Envelope.MessageID)
	}
	return raw
}

// bracketMessageID normalizes a Message-ID to its RFC 822 form with
// angle brackets.
func bracketMessageID(id string) string {
	if id == "" || strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}

// rawMessageID extracts the Message-ID header from raw message bytes.
func rawMessageID(raw []byte) (string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing message headers: %w", err)
	}
	return msg.Header.Get("Message-Id"), nil
}
