/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package bundle emits an artifact's assets and stylesheet and records
// where they went.
package bundle

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"bennypowers.dev/sheaf/assets"
)

// EmittedAsset is one asset written for an artifact.
type EmittedAsset struct {
	Path    string `json:"path"`    // source file
	Address string `json:"address"` // output address
	URL     string `json:"url"`     // as written into the stylesheet
}

// Result describes an emitted stylesheet artifact.
type Result struct {
	Address string
	// URL is the public path prefix joined with Address; hot-replacement
	// link matching uses it.
	URL    string
	Text   string
	Assets []EmittedAsset
}

// Emit writes every pending asset to out, substitutes their placeholders
// in text, and then writes text itself as fileName. Assets are emitted
// first because the stylesheet depends on their addresses.
//
// With an empty publicPath and an Output that implements Placer, asset
// URLs are written relative to the stylesheet; otherwise they are
// publicPath followed by the address.
func Emit(ctx context.Context, out Output, text string, pending []*assets.Asset, fileName, publicPath string) (Result, error) {
	var res Result
	addresses := make(map[string]string, len(pending))

	var cssDir string
	placer, relative := out.(Placer)
	if relative && publicPath == "" {
		cssDir = placer.Dir(fileName)
	} else {
		relative = false
	}

	for _, a := range pending {
		addr, err := out.Emit(ctx, filepath.Base(a.Path), a.Data)
		if err != nil {
			return Result{}, fmt.Errorf("emitting asset %s: %w", a.Path, err)
		}
		url := publicPath + addr
		if relative {
			url = relativeURL(cssDir, addr)
		}
		addresses[a.Path] = url
		res.Assets = append(res.Assets, EmittedAsset{Path: a.Path, Address: addr, URL: url})
	}

	res.Text = assets.Substitute(text, pending, addresses)

	addr, err := out.Emit(ctx, fileName, []byte(res.Text))
	if err != nil {
		return Result{}, fmt.Errorf("emitting %s: %w", fileName, err)
	}
	res.Address = addr
	res.URL = publicPath + addr
	return res, nil
}

// relativeURL expresses addr relative to dir; both are slash paths from
// the output root.
func relativeURL(dir, addr string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(addr))
	if err != nil {
		return addr
	}
	return path.Clean(filepath.ToSlash(rel))
}
