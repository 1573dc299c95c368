// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	directionUpload   = "upload"
	directionDownload = "download"
)

// CopyTo transfers a local file or directory to the endpoint.
// Directories are transferred recursively. Existing destination files
// are overwritten without confirmation.
func CopyTo(
	ctx context.Context,
	ep Endpoint,
	localPath string,
	remotePath string,
) error {
	client, sftpClient, err := dialSFTP(ctx, ep)
	if err != nil {
		return err
	}
	defer client.Close()
	defer sftpClient.Close()

	info, err := os.Stat(localPath)
	if err != nil {
		return &TransferError{
			Direction: directionUpload,
			Path:      localPath,
			Err:       err,
		}
	}

	if !info.IsDir() {
		return uploadFile(sftpClient, localPath, remotePath, info.Mode())
	}

	walk := func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return &TransferError{
				Direction: directionUpload,
				Path:      p,
				Err:       err,
			}
		}

		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}

		target := path.Join(remotePath, filepath.ToSlash(rel))

		if entry.IsDir() {
			if err := sftpClient.MkdirAll(target); err != nil {
				return &TransferError{
					Direction: directionUpload,
					Path:      target,
					Err:       err,
				}
			}

			return nil
		}

		fileInfo, err := entry.Info()
		if err != nil {
			return err
		}

		return uploadFile(sftpClient, p, target, fileInfo.Mode())
	}

	return filepath.WalkDir(localPath, walk)
}

// CopyFrom transfers a remote file or directory from the endpoint to
// the local filesystem. Directories are transferred recursively.
// Existing destination files are overwritten without confirmation.
func CopyFrom(
	ctx context.Context,
	ep Endpoint,
	remotePath string,
	localPath string,
) error {
	client, sftpClient, err := dialSFTP(ctx, ep)
	if err != nil {
		return err
	}
	defer client.Close()
	defer sftpClient.Close()

	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		return &TransferError{
			Direction: directionDownload,
			Path:      remotePath,
			Err:       err,
		}
	}

	if !info.IsDir() {
		return downloadFile(sftpClient, remotePath, localPath, info.Mode())
	}

	walker := sftpClient.Walk(remotePath)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return &TransferError{
				Direction: directionDownload,
				Path:      walker.Path(),
				Err:       err,
			}
		}

		rel, err := filepath.Rel(remotePath, walker.Path())
		if err != nil {
			return err
		}

		target := filepath.Join(localPath, rel)

		if walker.Stat().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &TransferError{
					Direction: directionDownload,
					Path:      target,
					Err:       err,
				}
			}

			continue
		}

		err = downloadFile(
			sftpClient, walker.Path(), target, walker.Stat().Mode(),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func dialSFTP(
	ctx context.Context,
	ep Endpoint,
) (*ssh.Client, *sftp.Client, error) {
	client, err := dial(ctx, ep)
	if err != nil {
		return nil, nil, err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, nil, &ConnectError{Addr: ep.Addr(), Err: err}
	}

	return client, sftpClient, nil
}

func uploadFile(
	client *sftp.Client,
	localPath string,
	remotePath string,
	mode fs.FileMode,
) error {
	fail := func(p string, err error) error {
		return &TransferError{
			Direction: directionUpload,
			Path:      p,
			Err:       err,
		}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fail(localPath, err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fail(remotePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fail(remotePath, err)
	}

	if err := dst.Close(); err != nil {
		return fail(remotePath, err)
	}

	// Permission propagation is best effort, not every SFTP server
	// supports it.
	_ = client.Chmod(remotePath, mode.Perm())

	return nil
}

func downloadFile(
	client *sftp.Client,
	remotePath string,
	localPath string,
	mode fs.FileMode,
) error {
	fail := func(p string, err error) error {
		return &TransferError{
			Direction: directionDownload,
			Path:      p,
			Err:       err,
		}
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return fail(remotePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(
		localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm(),
	)
	if err != nil {
		return fail(localPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fail(localPath, err)
	}

	if err := dst.Close(); err != nil {
		return fail(localPath, err)
	}

	return nil
}
