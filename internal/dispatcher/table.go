package dispatcher

// commandTable maps command names to handlers. Names are stable; the
// shells compile them in.
func (d *Dispatcher) commandTable() map[string]handler {
	return map[string]handler{
		"initialize":     d.initialize,
		"enable_logging": d.enableLogging,

		"open_kdbx":                 d.openKdbx,
		"open_kdbx_from_fd":         d.openKdbxFromFd,
		"save_kdbx":                 d.saveKdbx,
		"save_kdbx_to_fd":           d.saveKdbxToFd,
		"create_kdbx":               d.createKdbx,
		"create_kdbx_to_fd":         d.createKdbxToFd,
		"save_as_on_error":          d.saveAsOnError,
		"save_as_on_error_to_fd":    d.saveAsOnErrorToFd,
		"verify_db_file_checksum":   d.verifyDbFileChecksum,
		"close_kdbx":                d.closeKdbx,
		"upload_attachment_from_fd": d.uploadAttachmentFromFd,

		"rs_connect_and_list_root":       d.rsConnectAndListRoot,
		"rs_connect_by_id_and_list_root": d.rsConnectByIDAndListRoot,
		"rs_connect_by_id":               d.rsConnectByID,
		"rs_list_dir":                    d.rsListDir,
		"rs_list_sub_dir":                d.rsListSubDir,
		"rs_file_metadata":               d.rsFileMetadata,
		"is_rs_file_modified":            d.isRsFileModified,
		"rs_list_configs":                d.rsListConfigs,
		"rs_delete_config":               d.rsDeleteConfig,

		"store_credentials":   d.storeCredentials,
		"get_credentials":     d.getCredentials,
		"remove_credentials":  d.removeCredentials,
		"store_app_lock_pin":  d.storeAppLockPin,
		"verify_app_lock_pin": d.verifyAppLockPin,
		"remove_app_lock_pin": d.removeAppLockPin,

		"get_preference":       d.getPreference,
		"set_preference":       d.setPreference,
		"remove_recently_used": d.removeRecentlyUsed,

		"copy_picked_key_file": d.copyPickedKeyFile,
		"list_key_files":       d.listKeyFiles,
		"delete_key_file":      d.deleteKeyFile,

		"prepare_export_data": d.prepareExportData,
		"clear_export_data":   d.clearExportData,

		"start_otp_updates": d.startOtpUpdates,
		"stop_otp_updates":  d.stopOtpUpdates,
		"generate_otp":      d.generateOtp,

		"copy_to_clipboard": d.copyToClipboard,
		"recent_activity":   d.recentActivity,
	}
}
