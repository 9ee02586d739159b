package model

import (
	"time"
)

// Folder groups requests inside a collection and may nest
type Folder struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	ParentID  string    `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Requests  []Request `json:"requests" yaml:"requests"`
	Folders   []Folder  `json:"folders" yaml:"folders"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Collection represents a tree of saved requests
type Collection struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Folders   []Folder  `json:"folders" yaml:"folders"`
	Requests  []Request `json:"requests" yaml:"requests"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// NewCollection creates an empty collection
func NewCollection(name string) *Collection {
	now := time.Now().UTC()
	return &Collection{
		ID:        NewID(),
		Name:      name,
		Folders:   []Folder{},
		Requests:  []Request{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Rename changes the collection name
func (c *Collection) Rename(name string) {
	c.Name = name
	c.touch()
}

// AddFolder creates a folder at the root (parentID == "") or under parentID
func (c *Collection) AddFolder(parentID, name string) (Folder, error) {
	folder := Folder{
		ID:        NewID(),
		Name:      name,
		ParentID:  parentID,
		Requests:  []Request{},
		Folders:   []Folder{},
		CreatedAt: time.Now().UTC(),
	}
	if parentID == "" {
		c.Folders = append(c.Folders, folder)
		c.touch()
		return folder, nil
	}
	parent := findFolder(c.Folders, parentID)
	if parent == nil {
		return Folder{}, ErrFolderNotFound
	}
	folder.ParentID = parent.ID
	parent.Folders = append(parent.Folders, folder)
	c.touch()
	return folder, nil
}

// DeleteFolder removes a folder (by id or name) and everything inside it
func (c *Collection) DeleteFolder(folderID string) error {
	var removed bool
	c.Folders = removeFolder(c.Folders, folderID, &removed)
	if !removed {
		return ErrFolderNotFound
	}
	c.touch()
	return nil
}

// AddRequest stores a copy of req at the root (folderID == "") or in a folder
func (c *Collection) AddRequest(folderID string, req Request) (Request, error) {
	now := time.Now().UTC()
	req = req.Clone()
	req.ID = NewID()
	req.CreatedAt = now
	req.UpdatedAt = now

	if folderID == "" {
		c.Requests = append(c.Requests, req)
		c.touch()
		return req, nil
	}
	folder := findFolder(c.Folders, folderID)
	if folder == nil {
		return Request{}, ErrFolderNotFound
	}
	folder.Requests = append(folder.Requests, req)
	c.touch()
	return req, nil
}

// UpdateRequest replaces the request with the same id wherever it lives
func (c *Collection) UpdateRequest(req Request) error {
	existing := c.FindRequest(req.ID)
	if existing == nil {
		return ErrRequestNotFound
	}
	req = req.Clone()
	req.UpdatedAt = time.Now().UTC()
	*existing = req
	c.touch()
	return nil
}

// DeleteRequest removes the request with the given id
func (c *Collection) DeleteRequest(requestID string) error {
	if deleteRequest(&c.Requests, c.Folders, requestID) {
		c.touch()
		return nil
	}
	return ErrRequestNotFound
}

// FindRequest finds a request by id, or by name when no id matches.
// Root requests are searched first, then folders depth-first.
func (c *Collection) FindRequest(idOrName string) *Request {
	if r := findRequest(c.Requests, c.Folders, func(r *Request) bool { return r.ID == idOrName }); r != nil {
		return r
	}
	return findRequest(c.Requests, c.Folders, func(r *Request) bool { return r.Name == idOrName })
}

// AllRequests returns every request in tree order
func (c *Collection) AllRequests() []Request {
	out := append([]Request{}, c.Requests...)
	var walk func(folders []Folder)
	walk = func(folders []Folder) {
		for _, f := range folders {
			out = append(out, f.Requests...)
			walk(f.Folders)
		}
	}
	walk(c.Folders)
	return out
}

func (c *Collection) touch() {
	c.UpdatedAt = time.Now().UTC()
}

func findFolder(folders []Folder, id string) *Folder {
	for i := range folders {
		if folders[i].ID == id || folders[i].Name == id {
			return &folders[i]
		}
		if f := findFolder(folders[i].Folders, id); f != nil {
			return f
		}
	}
	return nil
}

func removeFolder(folders []Folder, id string, removed *bool) []Folder {
	out := folders[:0]
	for _, f := range folders {
		if !*removed && (f.ID == id || f.Name == id) {
			*removed = true
			continue
		}
		f.Folders = removeFolder(f.Folders, id, removed)
		out = append(out, f)
	}
	return out
}

func findRequest(requests []Request, folders []Folder, match func(*Request) bool) *Request {
	for i := range requests {
		if match(&requests[i]) {
			return &requests[i]
		}
	}
	for i := range folders {
		if r := findRequest(folders[i].Requests, folders[i].Folders, match); r != nil {
			return r
		}
	}
	return nil
}

func deleteRequest(requests *[]Request, folders []Folder, id string) bool {
	for i, r := range *requests {
		if r.ID == id {
			*requests = append((*requests)[:i], (*requests)[i+1:]...)
			return true
		}
	}
	for i := range folders {
		if deleteRequest(&folders[i].Requests, folders[i].Folders, id) {
			return true
		}
	}
	return false
}
