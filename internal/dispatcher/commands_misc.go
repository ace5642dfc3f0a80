package dispatcher

import (
	"context"
	"time"

	"github.com/okpass/mobilecore/internal/otp"
	"github.com/okpass/mobilecore/internal/preference"
)

// --- biometric credentials ---

type credentialArgs struct {
	DbKey       string  `json:"db_key"`
	Password    *string `json:"password"`
	KeyFileName *string `json:"key_file_name"`
}

func (d *Dispatcher) storeCredentials(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args credentialArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return nil, c.creds.StoreCredentials(args.DbKey, args.Password, args.KeyFileName)
}

func (d *Dispatcher) getCredentials(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return c.creds.GetCredentials(args.DbKey)
}

func (d *Dispatcher) removeCredentials(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return nil, c.creds.RemoveCredentials(args.DbKey)
}

// --- app lock ---

type pinArgs struct {
	Pin int `json:"pin"`
}

func (d *Dispatcher) storeAppLockPin(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args pinArgs
	if err := decodeArgs(argsJSON, &args, "pin"); err != nil {
		return nil, err
	}
	return nil, c.creds.StoreAppLockPin(args.Pin)
}

func (d *Dispatcher) verifyAppLockPin(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args pinArgs
	if err := decodeArgs(argsJSON, &args, "pin"); err != nil {
		return nil, err
	}
	return c.creds.VerifyAppLockPin(args.Pin)
}

func (d *Dispatcher) removeAppLockPin(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	return nil, c.creds.RemoveAppLockPin()
}

// --- preference ---

func (d *Dispatcher) getPreference(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	pref := c.state.Prefs().Get()
	return &pref, nil
}

type setPreferenceArgs struct {
	Preference preference.Preference `json:"preference"`
}

func (d *Dispatcher) setPreference(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args setPreferenceArgs
	if err := decodeArgs(argsJSON, &args, "preference"); err != nil {
		return nil, err
	}
	return nil, c.state.Prefs().Update(func(p *preference.Preference) {
		*p = args.Preference
	})
}

func (d *Dispatcher) removeRecentlyUsed(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return nil, c.state.Prefs().Update(func(p *preference.Preference) {
		p.RemoveRecent(args.DbKey)
	})
}

// --- key files ---

type copyKeyFileArgs struct {
	FilePath  string `json:"file_path"`
	Overwrite bool   `json:"overwrite"`
}

func (d *Dispatcher) copyPickedKeyFile(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args copyKeyFileArgs
	if err := decodeArgs(argsJSON, &args, "file_path"); err != nil {
		return nil, err
	}
	return c.keyFiles.CopyPicked(args.FilePath, args.Overwrite)
}

func (d *Dispatcher) listKeyFiles(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	return c.keyFiles.List()
}

type keyFileNameArgs struct {
	Name string `json:"name"`
}

func (d *Dispatcher) deleteKeyFile(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args keyFileNameArgs
	if err := decodeArgs(argsJSON, &args, "name"); err != nil {
		return nil, err
	}
	return nil, c.keyFiles.Delete(args.Name)
}

// --- export ---

func (d *Dispatcher) prepareExportData(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return c.exports.PrepareExportData(args.DbKey)
}

func (d *Dispatcher) clearExportData(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	return nil, c.exports.ClearExportData()
}

// --- otp ---

type startOtpArgs struct {
	DbKey     string `json:"db_key"`
	EntryUUID string `json:"entry_uuid"`
}

func (d *Dispatcher) startOtpUpdates(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args startOtpArgs
	if err := decodeArgs(argsJSON, &args, "db_key", "entry_uuid"); err != nil {
		return nil, err
	}
	otpURL, err := c.codec.EntryOtpURL(args.DbKey, args.EntryUUID)
	if err != nil {
		return nil, err
	}
	return nil, c.tokens.Start(args.EntryUUID, otpURL)
}

type generateOtpArgs struct {
	OtpURL string `json:"otp_url"`
}

func (d *Dispatcher) generateOtp(_ context.Context, argsJSON string) (any, error) {
	var args generateOtpArgs
	if err := decodeArgs(argsJSON, &args, "otp_url"); err != nil {
		return nil, err
	}
	return otp.GenerateToken(args.OtpURL)
}

func (d *Dispatcher) stopOtpUpdates(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	c.tokens.Stop()
	return nil, nil
}

// --- clipboard ---

type clipboardArgs struct {
	Text           string `json:"text"`
	Protected      bool   `json:"protected"`
	CleanupAfterMs int64  `json:"cleanup_after_ms"`
}

func (d *Dispatcher) copyToClipboard(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args clipboardArgs
	if err := decodeArgs(argsJSON, &args, "text"); err != nil {
		return nil, err
	}
	clip := c.state.Services().Clip
	if clip == nil {
		return nil, nil
	}
	return nil, clip.Copy(args.Text, args.Protected, time.Duration(args.CleanupAfterMs)*time.Millisecond)
}

// --- activity log ---

type activityArgs struct {
	DbKey string `json:"db_key"`
	Limit int    `json:"limit"`
}

func (d *Dispatcher) recentActivity(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	if c.activity == nil {
		return []struct{}{}, nil
	}
	var args activityArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	if args.DbKey != "" {
		return c.activity.RecentActivity(ctx, args.DbKey, args.Limit)
	}
	return c.activity.AllRecentActivity(ctx, args.Limit)
}
